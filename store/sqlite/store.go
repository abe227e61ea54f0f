// Package sqlite is an authcore.CredentialStore on SQLite through the pure Go
// modernc.org/sqlite driver. Case-insensitive uniqueness comes from
// COLLATE NOCASE unique columns. Timestamps are stored as Unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db  *sql.DB
	dsn string
}

var _ authcore.CredentialStore = (*Store)(nil)

// NewStore opens dsn. In-memory databases are pinned to a single connection
// so every query sees the same data.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const userColumns = `id, username, email, password_hash, email_verified, login_attempts, lockout_until, lockout_reason, created_at, updated_at`

func scanUser(row *sql.Row) (*authcore.User, error) {
	var (
		u            authcore.User
		hash, reason sql.NullString
		lockUntil    sql.NullInt64
		created      int64
		updated      int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &u.EmailVerified, &u.LoginAttempts, &lockUntil, &reason, &created, &updated)
	if err != nil {
		return nil, mapNotFound(err)
	}
	u.PasswordHash = mapNullStringPtr(hash)
	u.LockoutReason = mapNullStringPtr(reason)
	if lockUntil.Valid {
		t := fromMillis(lockUntil.Int64)
		u.LockoutUntil = &t
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, mapOptionalString(u.PasswordHash), u.EmailVerified, u.LoginAttempts,
		mapOptionalTime(u.LockoutUntil), mapOptionalString(u.LockoutReason), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return mapUniqueViolation(err)
}

func (s *Store) UpdateUser(ctx context.Context, id string, update authcore.UserUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(time.Now())}

	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *update.PasswordHash)
	}
	if update.EmailVerified != nil {
		sets = append(sets, "email_verified = ?")
		args = append(args, *update.EmailVerified)
	}
	if update.LoginAttempts != nil {
		sets = append(sets, "login_attempts = ?")
		args = append(args, *update.LoginAttempts)
	}
	if update.SetLockout {
		sets = append(sets, "lockout_until = ?", "lockout_reason = ?")
		args = append(args, mapOptionalTime(update.LockoutUntil), mapOptionalString(update.LockoutReason))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = ? WHERE id = ? RETURNING login_attempts`,
		toMillis(time.Now()), id,
	).Scan(&n)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

func (s *Store) CreateEmailVerification(ctx context.Context, v authcore.EmailVerification) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM email_verifications WHERE email = ? AND user_id = ?`, v.Email, v.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO email_verifications (email, user_id, otp, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			v.Email, v.UserID, v.OTP, toMillis(v.ExpiresAt), toMillis(v.CreatedAt),
		)
		return err
	})
}

func scanVerification(row *sql.Row) (*authcore.EmailVerification, error) {
	var (
		v                authcore.EmailVerification
		expires, created int64
	)
	if err := row.Scan(&v.Email, &v.UserID, &v.OTP, &expires, &created); err != nil {
		return nil, mapNotFound(err)
	}
	v.ExpiresAt = fromMillis(expires)
	v.CreatedAt = fromMillis(created)
	return &v, nil
}

func (s *Store) FindActiveEmailVerification(ctx context.Context, email, otp string, now time.Time) (*authcore.EmailVerification, error) {
	return scanVerification(s.db.QueryRowContext(ctx,
		`SELECT email, user_id, otp, expires_at, created_at FROM email_verifications
		 WHERE email = ? AND otp = ? AND expires_at > ? ORDER BY created_at DESC LIMIT 1`,
		email, otp, toMillis(now),
	))
}

func (s *Store) FindLatestEmailVerification(ctx context.Context, email, userID string) (*authcore.EmailVerification, error) {
	return scanVerification(s.db.QueryRowContext(ctx,
		`SELECT email, user_id, otp, expires_at, created_at FROM email_verifications
		 WHERE email = ? AND user_id = ? ORDER BY created_at DESC LIMIT 1`,
		email, userID,
	))
}

func (s *Store) DeleteEmailVerification(ctx context.Context, email, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_verifications WHERE email = ? AND user_id = ?`, email, userID)
	return err
}

func (s *Store) CreatePasswordResetToken(ctx context.Context, t authcore.PasswordResetToken) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE email = ? AND user_id = ?`, t.Email, t.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO password_reset_tokens (email, user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			t.Email, t.UserID, t.Token, toMillis(t.ExpiresAt), toMillis(t.CreatedAt),
		)
		return err
	})
}

func (s *Store) FindActivePasswordResetToken(ctx context.Context, token string, now time.Time) (*authcore.PasswordResetToken, error) {
	var (
		t                authcore.PasswordResetToken
		expires, created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, user_id, token, expires_at, created_at FROM password_reset_tokens
		 WHERE token = ? AND expires_at > ?`,
		token, toMillis(now),
	).Scan(&t.Email, &t.UserID, &t.Token, &expires, &created)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

func (s *Store) DeletePasswordResetToken(ctx context.Context, email, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE email = ? AND user_id = ?`, email, userID)
	return err
}

// PurgeExpired deletes verification and reset rows that expired at or
// before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"email_verifications", "password_reset_tokens"} {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, toMillis(now))
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
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// mapUniqueViolation turns a UNIQUE failure on users into *ConflictError.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return err
	}
	if serr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && serr.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return err
	}
	msg := serr.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return &authcore.ConflictError{Field: "username"}
	case strings.Contains(msg, "users.email"):
		return &authcore.ConflictError{Field: "email"}
	default:
		return &authcore.ConflictError{Field: "id"}
	}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapOptionalTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
