package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// fakeAuthServer is a minimal stand-in for the API, recording the bearer
// tokens it sees.
type fakeAuthServer struct {
	t           *testing.T
	validAccess string
	seenAuth    []string
}

func (f *fakeAuthServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Username) < 3 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string][]string{
				"username": {"Username must be at least 3 characters."},
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "User registered successfully.",
			"user":    User{ID: 1, Username: req.Username, Email: req.Email},
		})
	})

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "longenough1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found with the given credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "acc-1", "refresh": "ref-1"})
	})

	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Refresh != "ref-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "acc-2", "refresh": "ref-1"})
	})

	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Authentication credentials were not provided or are invalid."})
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: 1, Username: "bob12", Email: "bob@x.com"})
	})

	mux.HandleFunc("GET /api/auth/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Authentication credentials were not provided or are invalid."})
			return
		}
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "User not found."})
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: 7, Username: "carol", Email: "carol@x.com", IsStaff: true})
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Successfully logged out."})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAuthServer, *MemoryTokenStore) {
	t.Helper()
	fake := &fakeAuthServer{t: t, validAccess: "acc-1"}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	store := NewMemoryTokenStore()
	return New(srv.URL, store), fake, store
}

func TestLoginStoresTokenPair(t *testing.T) {
	c, _, store := newTestClient(t)

	if err := c.Login(context.Background(), "bob12", "longenough1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	pair, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pair.Access != "acc-1" || pair.Refresh != "ref-1" {
		t.Fatalf("stored pair = %+v", pair)
	}
}

func TestLoginFailureLeavesStoreEmpty(t *testing.T) {
	c, _, store := newTestClient(t)

	err := c.Login(context.Background(), "bob12", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatal("store must stay empty after failed login")
	}
}

func TestProfileAttachesBearerToken(t *testing.T) {
	c, fake, _ := newTestClient(t)

	if err := c.Login(context.Background(), "bob12", "longenough1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	u, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if u.Username != "bob12" {
		t.Fatalf("profile = %+v", u)
	}
	if len(fake.seenAuth) == 0 || fake.seenAuth[0] != "Bearer acc-1" {
		t.Fatalf("authorization header = %v", fake.seenAuth)
	}
}

func TestProfileRejectionClearsStore(t *testing.T) {
	c, _, store := newTestClient(t)

	if err := store.Save(TokenPair{Access: "stale", Refresh: "stale"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := c.Profile(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatal("store must be cleared after rejected profile fetch")
	}
}

func TestProfileWithoutSession(t *testing.T) {
	c, _, _ := newTestClient(t)
	if _, err := c.Profile(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestRefreshUpdatesAccessToken(t *testing.T) {
	c, fake, store := newTestClient(t)

	if err := c.Login(context.Background(), "bob12", "longenough1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	pair, _ := store.Load()
	if pair.Access != "acc-2" || pair.Refresh != "ref-1" {
		t.Fatalf("pair after refresh = %+v", pair)
	}

	fake.validAccess = "acc-2"
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("Profile after refresh: %v", err)
	}
}

func TestLogoutClearsStore(t *testing.T) {
	c, _, store := newTestClient(t)

	if err := c.Login(context.Background(), "bob12", "longenough1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatal("store must be empty after logout")
	}
}

func TestGetUser(t *testing.T) {
	c, _, _ := newTestClient(t)

	if err := c.Login(context.Background(), "bob12", "longenough1"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	u, err := c.GetUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ID != 7 || u.Username != "carol" || !u.IsStaff {
		t.Fatalf("user = %+v", u)
	}

	_, err = c.GetUser(context.Background(), 99)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 APIError", err)
	}
}

func TestRegisterFieldErrors(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, err := c.Register(context.Background(), RegisterRequest{
		Username: "ab", Email: "bob@x.com",
		Password: "longenough1", Password2: "longenough1",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 APIError", err)
	}
	if len(apiErr.Fields["username"]) == 0 {
		t.Fatalf("Fields = %v, want username entry", apiErr.Fields)
	}
}

func TestNetworkErrorIsDistinguishable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	store := NewMemoryTokenStore()
	c := New(srv.URL, store)

	err := c.Login(context.Background(), "bob12", "longenough1")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}

	// A transient failure must not throw away an existing session.
	if err := store.Save(TokenPair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := c.Profile(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if pair, err := store.Load(); err != nil || pair.Access != "a" {
		t.Fatalf("pair = %+v, err = %v; session must survive a network error", pair, err)
	}
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewFileTokenStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("fresh store: err = %v, want ErrNoSession", err)
	}

	pair := TokenPair{Access: "a", Refresh: "r"}
	if err := store.Save(pair); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A new store over the same path sees the persisted pair.
	loaded, err := NewFileTokenStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != pair {
		t.Fatalf("loaded = %+v, want %+v", loaded, pair)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatal("store must be empty after Clear")
	}
	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
