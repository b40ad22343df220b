package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents a user row in the persistence layer.
type UserRecord struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
}

// User converts a stored record into the handler-facing principal.
func (r UserRecord) User() User {
	return User{
		ID:          r.ID,
		Username:    r.Username,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		IsActive:    r.IsActive,
		IsStaff:     r.IsStaff,
		IsSuperuser: r.IsSuperuser,
		CreatedAt:   r.CreatedAt,
	}
}

// NewUser carries the fields needed to create a user row.
type NewUser struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
}

// UserPatch carries a partial update; nil fields are left unchanged.
type UserPatch struct {
	Username    *string
	Email       *string
	FirstName   *string
	LastName    *string
	IsActive    *bool
	IsStaff     *bool
	IsSuperuser *bool
}

// AdminUserItem is a projection for admin user listing (no password hash).
type AdminUserItem struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	IsActive    bool      `json:"is_active"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
	Create(ctx context.Context, u NewUser) (int64, error)
	// Search lists users newest first, optionally filtered by a
	// case-insensitive substring match on username/email/name fields.
	Search(ctx context.Context, query string, page, perPage int) ([]AdminUserItem, int, error)
	Update(ctx context.Context, id int64, patch UserPatch) (*UserRecord, error)
	Delete(ctx context.Context, id int64) error
	HasAdmin(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, password_hash, is_active, is_staff, is_superuser, created_at`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *PgUserRepository) Create(ctx context.Context, u NewUser) (int64, error) {
	const q = `INSERT INTO users (username, email, first_name, last_name, password_hash, is_active, is_staff, is_superuser)
		VALUES ($1,$2,$3,$4,$5,TRUE,$6,$7) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, u.Username, u.Email, u.FirstName, u.LastName,
		u.PasswordHash, u.IsStaff, u.IsSuperuser).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Search returns paginated users without password hash, newest first.
func (r *PgUserRepository) Search(ctx context.Context, query string, page, perPage int) ([]AdminUserItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}

	where := ""
	args := []any{}
	if q := strings.TrimSpace(query); q != "" {
		where = ` WHERE username ILIKE $1 OR email ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1`
		args = append(args, "%"+escapeLike(q)+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	n := len(args)
	listQ := `SELECT id, username, email, first_name, last_name, is_active, is_staff, is_superuser, created_at FROM users` +
		where + ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(n-1) + ` OFFSET $` + itoa(n)
	rows, err := r.db.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]AdminUserItem, 0, perPage)
	for rows.Next() {
		var u AdminUserItem
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
			&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

// Update applies the non-nil fields of patch and returns the updated row.
func (r *PgUserRepository) Update(ctx context.Context, id int64, patch UserPatch) (*UserRecord, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+"=$"+itoa(len(args)))
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.IsStaff != nil {
		add("is_staff", *patch.IsStaff)
	}
	if patch.IsSuperuser != nil {
		add("is_superuser", *patch.IsSuperuser)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}

	args = append(args, id)
	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id=$` + itoa(len(args)) +
		` RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, args...))
}

func (r *PgUserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users WHERE is_staff OR is_superuser LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// escapeLike neutralizes LIKE wildcards in user-supplied search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
