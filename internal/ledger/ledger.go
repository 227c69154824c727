// Package ledger is the only code that mutates account credit balances.
//
// Every mutation is a single conditional UPDATE issued through a
// database.Executor, so callers pair it with their own writes by passing the
// *sql.Tx that also carries those writes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/chimeralens/internal/database"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
)

// Decrement subtracts amount from the balance and returns the new balance.
// The balance check and the subtraction are one statement, so a committed
// decrement never drives the balance negative.
func Decrement(ctx context.Context, exec database.Executor, accountID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	const query = `
UPDATE accounts SET credits = credits - ?, updated_at = ?
WHERE id = ? AND credits >= ?`
	res, err := exec.ExecContext(ctx, query, amount, database.Now(), accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("decrement credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("decrement rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := Balance(ctx, exec, accountID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientCredits
	}
	return Balance(ctx, exec, accountID)
}

// Increment adds amount unconditionally and returns the new balance.
func Increment(ctx context.Context, exec database.Executor, accountID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	const query = `UPDATE accounts SET credits = credits + ?, updated_at = ? WHERE id = ?`
	res, err := exec.ExecContext(ctx, query, amount, database.Now(), accountID)
	if err != nil {
		return 0, fmt.Errorf("increment credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrAccountNotFound
	}
	return Balance(ctx, exec, accountID)
}

// Debit is a compensating decrement that clamps at zero instead of failing.
// It returns the amount actually removed and the new balance.
func Debit(ctx context.Context, exec database.Executor, accountID string, amount int) (removed int, balance int, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	before, err := Balance(ctx, exec, accountID)
	if err != nil {
		return 0, 0, err
	}
	const query = `
UPDATE accounts
SET credits = CASE WHEN credits >= ? THEN credits - ? ELSE 0 END, updated_at = ?
WHERE id = ?`
	if _, err := exec.ExecContext(ctx, query, amount, amount, database.Now(), accountID); err != nil {
		return 0, 0, fmt.Errorf("debit credits: %w", err)
	}
	after, err := Balance(ctx, exec, accountID)
	if err != nil {
		return 0, 0, err
	}
	return before - after, after, nil
}

// Balance reads the current balance.
func Balance(ctx context.Context, exec database.Executor, accountID string) (int, error) {
	var credits int
	err := exec.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = ?`, accountID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return credits, nil
}
