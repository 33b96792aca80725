package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rimsurge/identity-service/internal/core/domain"
	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolationCode = "23505"

var userColumns = []string{
	"id",
	"username",
	"nickname",
	"email",
	"mobile",
	"password",
	"salt",
	"password_algo",
	"status",
	"avatar",
	"platform",
	"createtime",
	"updatetime",
	"logintime",
	"loginip",
	"loginfailure",
}

// UserRepository implements port.UserRepository against the shared user table.
// The table is owned by the storefront admin system; this repository reads it,
// inserts new accounts, and updates login audit fields, but issues no DDL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// NewUserRepositoryWithExecutor constructs a repository backed by any executor
// that satisfies pgExecutor. Used by tests with a mocked pool.
func NewUserRepositoryWithExecutor(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *UserRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		user      domain.User
		mobile    sql.NullString
		loginTime sql.NullInt64
		loginIP   sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Nickname,
		&user.Email,
		&mobile,
		&user.PasswordHash,
		&user.Salt,
		&user.PasswordAlgo,
		&user.Status,
		&user.Avatar,
		&user.Platform,
		&user.CreateTime,
		&user.UpdateTime,
		&loginTime,
		&loginIP,
		&user.LoginFailure,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if mobile.Valid {
		val := mobile.String
		user.Mobile = &val
	}
	if loginTime.Valid {
		val := loginTime.Int64
		user.LoginTime = &val
	}
	if loginIP.Valid {
		val := loginIP.String
		user.LoginIP = &val
	}

	return &user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"username": username})
}

func (r *UserRepository) exists(ctx context.Context, pred squirrel.Eq) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan exists: %w", err)
	}

	return true, nil
}

// EmailExists reports whether an account already uses the email address.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"email": email})
}

// UsernameExists reports whether an account already uses the username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"username": username})
}

// Create inserts a new user row and returns the generated identifier. A
// uniqueness violation on email or username maps to repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (int64, error) {
	var mobileValue any
	if user.Mobile != nil && *user.Mobile != "" {
		mobileValue = *user.Mobile
	}

	stmt, args, err := r.builder.Insert("users").
		Columns(
			"username",
			"nickname",
			"email",
			"mobile",
			"password",
			"salt",
			"password_algo",
			"status",
			"avatar",
			"platform",
			"createtime",
			"updatetime",
		).
		Values(
			user.Username,
			user.Nickname,
			user.Email,
			mobileValue,
			user.PasswordHash,
			user.Salt,
			user.PasswordAlgo,
			user.Status,
			user.Avatar,
			user.Platform,
			user.CreateTime,
			user.UpdateTime,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert user sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return 0, repository.ErrDuplicate
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// RecordLogin updates the login audit fields and clears the consecutive
// failure counter.
func (r *UserRepository) RecordLogin(ctx context.Context, id int64, ip string, at time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("logintime", at.Unix()).
		Set("loginip", ip).
		Set("loginfailure", 0).
		Set("updatetime", at.Unix()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
