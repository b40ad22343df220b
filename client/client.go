package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNetwork wraps connectivity failures so callers can distinguish them
// from server rejections.
var ErrNetwork = errors.New("network error")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Detail string
	// Fields carries the field->messages map for validation failures.
	Fields map[string][]string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// User is the wire shape of a user record.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	CreatedAt   string `json:"created_at"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// UserPatch is a partial admin update; nil fields are not sent.
type UserPatch struct {
	Username    *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsStaff     *bool   `json:"is_staff,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

// UserList is the paginated admin listing response.
type UserList struct {
	Users      []User `json:"users"`
	Count      int    `json:"count"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
}

// Client talks to the auth API, attaching the stored bearer token to
// protected calls.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
}

// New builds a Client for baseURL using the given token store. A nil store
// gets an in-memory one.
func New(baseURL string, store TokenStore) *Client {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
	}
}

// Register creates a new account. Validation failures surface as *APIError
// with Fields populated.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, false, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Login exchanges credentials for a token pair and persists it in the store.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, false, &resp); err != nil {
		return err
	}
	return c.store.Save(TokenPair{Access: resp.Access, Refresh: resp.Refresh})
}

// Refresh forwards the stored refresh token and saves the new access token.
func (c *Client) Refresh(ctx context.Context) error {
	pair, err := c.store.Load()
	if err != nil {
		return err
	}
	body := map[string]string{"refresh": pair.Refresh}
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token/refresh", body, false, &resp); err != nil {
		return err
	}
	return c.store.Save(TokenPair{Access: resp.Access, Refresh: resp.Refresh})
}

// Logout tells the server to drop the refresh token and clears the store.
// The store is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, true, nil)
	if clearErr := c.store.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// Profile fetches the authenticated caller's record. When the server
// rejects the token, the stored pair is cleared so the caller drops back to
// the logged-out state.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil, true, &u); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			_ = c.store.Clear()
		}
		return nil, err
	}
	return &u, nil
}

// ListUsers searches users (admin only). Empty query lists everyone.
func (c *Client) ListUsers(ctx context.Context, query string, page, perPage int) (*UserList, error) {
	v := url.Values{}
	if query != "" {
		v.Set("q", query)
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		v.Set("per_page", strconv.Itoa(perPage))
	}
	path := "/api/auth/users"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var list UserList
	if err := c.do(ctx, http.MethodGet, path, nil, true, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetUser fetches a single user record by id (admin only).
func (c *Client) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	path := "/api/auth/users/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser applies a partial update to another user (admin only).
func (c *Client) UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error) {
	var u User
	path := "/api/auth/users/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPatch, path, patch, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes another user (admin only).
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	path := "/api/auth/users/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, true, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		pair, err := c.store.Load()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}

	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
		return apiErr
	}

	var fields map[string][]string
	if json.Unmarshal(data, &fields) == nil && len(fields) > 0 {
		apiErr.Fields = fields
	}
	return apiErr
}
