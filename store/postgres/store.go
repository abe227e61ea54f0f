// Package postgres is an authcore.CredentialStore on PostgreSQL through the
// pgx database/sql driver. Case-insensitive uniqueness comes from unique
// indexes on lower(username) and lower(email); schema changes are applied
// with goose from embedded migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/postgres/migrations"
)

const uniqueViolation = "23505"

// DBTX is the subset of *sql.DB and *sql.Tx used by the store.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authcore.CredentialStore.
type Store struct {
	db *sql.DB
}

var _ authcore.CredentialStore = (*Store)(nil)

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction. A panic inside fn rolls back and is
// re-raised.
func (s *Store) withTx(ctx context.Context, fn func(tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

const userColumns = `id, username, email, password_hash, email_verified, login_attempts, lockout_until, lockout_reason, created_at, updated_at`

func scanUser(row *sql.Row) (*authcore.User, error) {
	var (
		u            authcore.User
		hash, reason sql.NullString
		lockUntil    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &u.EmailVerified, &u.LoginAttempts, &lockUntil, &reason, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	if reason.Valid {
		u.LockoutReason = &reason.String
	}
	if lockUntil.Valid {
		t := lockUntil.Time.UTC()
		u.LockoutUntil = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Email, nullString(u.PasswordHash), u.EmailVerified, u.LoginAttempts,
		nullTime(u.LockoutUntil), nullString(u.LockoutReason), u.CreatedAt, u.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (s *Store) UpdateUser(ctx context.Context, id string, update authcore.UserUpdate) error {
	sets := []string{"updated_at = now()"}
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.EmailVerified != nil {
		add("email_verified", *update.EmailVerified)
	}
	if update.LoginAttempts != nil {
		add("login_attempts", *update.LoginAttempts)
	}
	if update.SetLockout {
		add("lockout_until", nullTime(update.LockoutUntil))
		add("lockout_reason", nullString(update.LockoutReason))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = now() WHERE id = $1 RETURNING login_attempts`,
		id,
	).Scan(&n)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

func (s *Store) CreateEmailVerification(ctx context.Context, v authcore.EmailVerification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_verifications (email, user_id, otp, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email, user_id) DO UPDATE
		 SET otp = EXCLUDED.otp, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		v.Email, v.UserID, v.OTP, v.ExpiresAt, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanVerification(row *sql.Row) (*authcore.EmailVerification, error) {
	var v authcore.EmailVerification
	if err := row.Scan(&v.Email, &v.UserID, &v.OTP, &v.ExpiresAt, &v.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	v.ExpiresAt = v.ExpiresAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) FindActiveEmailVerification(ctx context.Context, email, otp string, now time.Time) (*authcore.EmailVerification, error) {
	return scanVerification(s.db.QueryRowContext(ctx,
		`SELECT email, user_id, otp, expires_at, created_at FROM email_verifications
		 WHERE lower(email) = lower($1) AND otp = $2 AND expires_at > $3
		 ORDER BY created_at DESC LIMIT 1`,
		email, otp, now,
	))
}

func (s *Store) FindLatestEmailVerification(ctx context.Context, email, userID string) (*authcore.EmailVerification, error) {
	return scanVerification(s.db.QueryRowContext(ctx,
		`SELECT email, user_id, otp, expires_at, created_at FROM email_verifications
		 WHERE lower(email) = lower($1) AND user_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		email, userID,
	))
}

func (s *Store) DeleteEmailVerification(ctx context.Context, email, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_verifications WHERE lower(email) = lower($1) AND user_id = $2`, email, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) CreatePasswordResetToken(ctx context.Context, t authcore.PasswordResetToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (email, user_id, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email, user_id) DO UPDATE
		 SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		t.Email, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) FindActivePasswordResetToken(ctx context.Context, token string, now time.Time) (*authcore.PasswordResetToken, error) {
	var t authcore.PasswordResetToken
	err := s.db.QueryRowContext(ctx,
		`SELECT email, user_id, token, expires_at, created_at FROM password_reset_tokens
		 WHERE token = $1 AND expires_at > $2`,
		token, now,
	).Scan(&t.Email, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) DeletePasswordResetToken(ctx context.Context, email, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE lower(email) = lower($1) AND user_id = $2`, email, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// PurgeExpired deletes verification and reset rows that expired at or
// before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx DBTX) error {
		for _, table := range []string{"email_verifications", "password_reset_tokens"} {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= $1`, now)
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// mapUniqueViolation turns a 23505 on users into *ConflictError, picking
// the field from the violated constraint.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("db error: %w", err)
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return &authcore.ConflictError{Field: "username"}
	case strings.Contains(pgErr.ConstraintName, "email"):
		return &authcore.ConflictError{Field: "email"}
	default:
		return &authcore.ConflictError{Field: "id"}
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
