package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, authService AuthService, tokens *TokenService, userRepo UserRepository, refreshStore RefreshTokenStore) *gin.Engine {
	r := gin.Default()

	r.Use(CORSMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/auth")
	{
		api.POST("/register", func(c *gin.Context) {
			var req RegisterInput
			if err := c.ShouldBindJSON(&req); err != nil {
				respondDetail(c, http.StatusBadRequest, "invalid json")
				return
			}

			if errs := ValidateRegister(req); errs.HasErrors() {
				respondFieldErrors(c, errs)
				return
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to hash password")
				return
			}

			ctx := c.Request.Context()
			id, err := userRepo.Create(ctx, NewUser{
				Username:     strings.TrimSpace(req.Username),
				Email:        NormalizeEmail(req.Email),
				FirstName:    strings.TrimSpace(req.FirstName),
				LastName:     strings.TrimSpace(req.LastName),
				PasswordHash: string(hash),
			})
			if err != nil {
				if errs, ok := duplicateFieldErrors(err); ok {
					respondFieldErrors(c, errs)
					return
				}
				respondDetail(c, http.StatusInternalServerError, "failed to create user")
				return
			}

			record, err := userRepo.FindByID(ctx, id)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to load created user")
				return
			}

			log.Printf("user registered username=%s id=%d", record.Username, record.ID)
			c.JSON(http.StatusCreated, gin.H{
				"message": "User registered successfully.",
				"user":    userJSON(record.User()),
			})
		})

		api.POST("/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondDetail(c, http.StatusBadRequest, "invalid json")
				return
			}

			user, err := authService.Authenticate(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondDetail(c, http.StatusUnauthorized, "No active account found with the given credentials")
				return
			}

			access, err := tokens.IssueAccessToken(user.ID)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to issue token")
				return
			}
			refresh, err := tokens.IssueRefreshToken(user.ID)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to issue token")
				return
			}
			if err := refreshStore.Save(c.Request.Context(), user.ID, refresh, tokens.RefreshTTL()); err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to persist refresh token")
				return
			}

			c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
		})

		api.POST("/token/refresh", func(c *gin.Context) {
			var req struct {
				Refresh string `json:"refresh"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
				respondDetail(c, http.StatusBadRequest, "refresh token is required")
				return
			}

			claims, err := tokens.ParseRefreshToken(req.Refresh)
			if err != nil {
				respondDetail(c, http.StatusUnauthorized, "Token is invalid or expired")
				return
			}
			ctx := c.Request.Context()
			live, err := refreshStore.Verify(ctx, claims.UserID, req.Refresh)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to verify refresh token")
				return
			}
			if !live {
				respondDetail(c, http.StatusUnauthorized, "Token is invalid or expired")
				return
			}

			// The account must still be allowed to hold a session.
			record, err := userRepo.FindByID(ctx, claims.UserID)
			if err != nil || record == nil || !record.IsActive {
				respondDetail(c, http.StatusUnauthorized, "Token is invalid or expired")
				return
			}

			access, err := tokens.IssueAccessToken(claims.UserID)
			if err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to issue token")
				return
			}

			// The stored refresh token is forwarded as-is; no rotation.
			c.JSON(http.StatusOK, gin.H{"access": access, "refresh": req.Refresh})
		})

		api.POST("/logout", BearerAuth(tokens, userRepo), func(c *gin.Context) {
			user, _ := currentUser(c)
			if err := refreshStore.Delete(c.Request.Context(), user.ID); err != nil {
				respondDetail(c, http.StatusInternalServerError, "failed to clear refresh token")
				return
			}
			log.Printf("user logged out username=%s", user.Username)
			c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out."})
		})

		api.GET("/profile", BearerAuth(tokens, userRepo), func(c *gin.Context) {
			user, _ := currentUser(c)
			c.JSON(http.StatusOK, userJSON(user))
		})

		users := api.Group("/users", BearerAuth(tokens, userRepo), AdminOnly())
		{
			users.GET("", func(c *gin.Context) {
				page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
				if err != nil {
					respondDetail(c, http.StatusBadRequest, err.Error())
					return
				}
				items, total, err := userRepo.Search(c.Request.Context(), c.Query("q"), page, perPage)
				if err != nil {
					respondDetail(c, http.StatusInternalServerError, "failed to fetch users")
					return
				}
				c.JSON(http.StatusOK, gin.H{
					"users":       items,
					"count":       total,
					"page":        page,
					"per_page":    perPage,
					"total_pages": calcTotalPages(total, perPage),
				})
			})

			users.GET("/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondDetail(c, http.StatusBadRequest, "invalid id")
					return
				}
				record, err := userRepo.FindByID(c.Request.Context(), id)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						respondDetail(c, http.StatusNotFound, "User not found.")
						return
					}
					respondDetail(c, http.StatusInternalServerError, "failed to load user")
					return
				}
				c.JSON(http.StatusOK, userJSON(record.User()))
			})

			update := func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondDetail(c, http.StatusBadRequest, "invalid id")
					return
				}
				var req AdminUpdateInput
				if err := c.ShouldBindJSON(&req); err != nil {
					respondDetail(c, http.StatusBadRequest, "invalid json")
					return
				}
				if errs := ValidateAdminUpdate(req); errs.HasErrors() {
					respondFieldErrors(c, errs)
					return
				}

				admin, _ := currentUser(c)
				record, err := userRepo.Update(c.Request.Context(), id, req.Patch())
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						respondDetail(c, http.StatusNotFound, "User not found.")
						return
					}
					if errs, ok := duplicateFieldErrors(err); ok {
						respondFieldErrors(c, errs)
						return
					}
					respondDetail(c, http.StatusInternalServerError, "failed to update user")
					return
				}

				log.Printf("admin %s updated user %s", admin.Username, record.Username)
				c.JSON(http.StatusOK, userJSON(record.User()))
			}
			users.PATCH("/:id", update)
			users.PUT("/:id", update)

			users.DELETE("/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondDetail(c, http.StatusBadRequest, "invalid id")
					return
				}

				admin, _ := currentUser(c)
				if id == admin.ID {
					respondDetail(c, http.StatusForbidden, "You cannot delete your own account.")
					return
				}

				ctx := c.Request.Context()
				target, err := userRepo.FindByID(ctx, id)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						respondDetail(c, http.StatusNotFound, "User not found.")
						return
					}
					respondDetail(c, http.StatusInternalServerError, "failed to load user")
					return
				}
				if target.IsSuperuser {
					respondDetail(c, http.StatusForbidden, "Superuser accounts cannot be deleted.")
					return
				}

				if err := userRepo.Delete(ctx, id); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						respondDetail(c, http.StatusNotFound, "User not found.")
						return
					}
					respondDetail(c, http.StatusInternalServerError, "failed to delete user")
					return
				}

				log.Printf("admin %s deleted user %s", admin.Username, target.Username)
				c.JSON(http.StatusOK, gin.H{"message": "User " + target.Username + " has been deleted."})
			})
		}
	}

	return r
}

// userJSON is the wire shape for a user record; the password hash is never
// part of it. created_at marshals as time.Time so detail and list responses
// share one timestamp format.
func userJSON(u User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"first_name":   u.FirstName,
		"last_name":    u.LastName,
		"is_active":    u.IsActive,
		"is_staff":     u.IsStaff,
		"is_superuser": u.IsSuperuser,
		"created_at":   u.CreatedAt,
	}
}

// duplicateFieldErrors maps a unique-constraint violation to the field that
// caused it so registration and update surface it like any validation error.
func duplicateFieldErrors(err error) (FieldErrors, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "duplicate") && !strings.Contains(msg, "unique") {
		return nil, false
	}
	errs := FieldErrors{}
	if strings.Contains(msg, "email") {
		errs.add("email", "A user with that email already exists.")
	} else {
		errs.add("username", "A user with that username already exists.")
	}
	return errs, true
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
