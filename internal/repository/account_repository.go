package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/models"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) DB() *sql.DB {
	return r.db
}

const accountColumns = `id, COALESCE(guest_token, ''), COALESCE(fingerprint, ''), COALESCE(created_from_ip, ''), is_guest, credits,
COALESCE(email, ''), COALESCE(name, ''), COALESCE(password_hash, ''), role, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	var role string
	if err := row.Scan(&a.ID, &a.GuestToken, &a.Fingerprint, &a.CreatedFromIP, &a.IsGuest, &a.Credits,
		&a.Email, &a.Name, &a.PasswordHash, &role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

func (r *AccountRepository) findOne(ctx context.Context, exec database.Executor, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (r *AccountRepository) FindByGuestToken(ctx context.Context, token string) (*models.Account, error) {
	return r.findOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE guest_token = ?`, token)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
}

// FindRecentGuestByFingerprint returns the newest guest created with the
// fingerprint at or after since.
func (r *AccountRepository) FindRecentGuestByFingerprint(ctx context.Context, fingerprint string, since time.Time) (*models.Account, error) {
	const query = `SELECT ` + accountColumns + `
FROM accounts
WHERE is_guest = ? AND fingerprint = ? AND created_at >= ?
ORDER BY created_at DESC
LIMIT 1`
	return r.findOne(ctx, r.db, query, true, fingerprint, since)
}

// FindRecentGuestByIP returns the newest guest created from ip at or after since.
func (r *AccountRepository) FindRecentGuestByIP(ctx context.Context, ip string, since time.Time) (*models.Account, error) {
	const query = `SELECT ` + accountColumns + `
FROM accounts
WHERE is_guest = ? AND created_from_ip = ? AND created_at >= ?
ORDER BY created_at DESC
LIMIT 1`
	return r.findOne(ctx, r.db, query, true, ip, since)
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	const query = `
INSERT INTO accounts (id, guest_token, fingerprint, created_from_ip, is_guest, credits, email, name, password_hash, role, created_at, updated_at)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`
	if account.Role == "" {
		account.Role = models.RoleUser
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = database.Now()
	}
	account.UpdatedAt = account.CreatedAt
	_, err := r.db.ExecContext(ctx, query, account.ID, account.GuestToken, account.Fingerprint, account.CreatedFromIP,
		account.IsGuest, account.Credits, account.Email, account.Name, account.PasswordHash, string(account.Role),
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// UpgradeGuest converts a guest row into a registered account in place. The
// id, credits and owned generations are untouched. It reports false when the
// row is no longer a guest.
func (r *AccountRepository) UpgradeGuest(ctx context.Context, accountID, email, name, passwordHash string) (bool, error) {
	const query = `
UPDATE accounts
SET email = ?, name = COALESCE(NULLIF(?, ''), name), password_hash = NULLIF(?, ''), is_guest = ?, guest_token = NULL, updated_at = ?
WHERE id = ? AND is_guest = ?`
	res, err := r.db.ExecContext(ctx, query, email, name, passwordHash, false, database.Now(), accountID, true)
	if err != nil {
		return false, fmt.Errorf("upgrade guest: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upgrade rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateName sets the display name. It reports false when no row matched.
func (r *AccountRepository) UpdateName(ctx context.Context, accountID, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET name = NULLIF(?, ''), updated_at = ? WHERE id = ?`, name, database.Now(), accountID)
	if err != nil {
		return false, fmt.Errorf("update account name: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update name rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdatePasswordHash replaces the stored hash on a registered account.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, accountID, hash string) (bool, error) {
	const query = `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ? AND is_guest = ?`
	res, err := r.db.ExecContext(ctx, query, hash, database.Now(), accountID, false)
	if err != nil {
		return false, fmt.Errorf("update password hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update password rows affected: %w", err)
	}
	return affected > 0, nil
}

// List pages through every account, newest first.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	const query = `SELECT ` + accountColumns + `
FROM accounts
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account list: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
