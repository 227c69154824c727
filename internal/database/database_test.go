package database_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/database/dbtest"
)

func insertAccount(ctx context.Context, exec database.Executor, id string) error {
	now := database.Now()
	_, err := exec.ExecContext(ctx, `INSERT INTO accounts (id, is_guest, credits, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, true, 10, "USER", now, now)
	return err
}

func countAccounts(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	if err := database.Migrate(context.Background(), db, database.DriverSQLite); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestWithTxCommits(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		return insertAccount(ctx, tx, "acct_a")
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if got := countAccounts(t, db); got != 1 {
		t.Fatalf("accounts: got %d, want 1", got)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := insertAccount(ctx, tx, "acct_a"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := countAccounts(t, db); got != 0 {
		t.Fatalf("accounts: got %d, want 0", got)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = database.WithTx(ctx, db, func(tx *sql.Tx) error {
			if err := insertAccount(ctx, tx, "acct_a"); err != nil {
				return err
			}
			panic("boom")
		})
	}()
	if got := countAccounts(t, db); got != 0 {
		t.Fatalf("accounts: got %d, want 0", got)
	}
}

func TestCreditsCheckConstraint(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	if err := insertAccount(ctx, db, "acct_a"); err != nil {
		t.Fatal(err)
	}
	_, err := db.ExecContext(ctx, `UPDATE accounts SET credits = -1 WHERE id = ?`, "acct_a")
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "check") {
		t.Fatalf("expected CHECK violation, got %v", err)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	if err := insertAccount(ctx, db, "acct_a"); err != nil {
		t.Fatal(err)
	}
	err := insertAccount(ctx, db, "acct_a")
	if err == nil {
		t.Fatal("expected duplicate primary key error")
	}
	if !database.IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey(%v) = false", err)
	}
	if database.IsDuplicateKey(errors.New("other")) {
		t.Fatal("IsDuplicateKey matched an unrelated error")
	}
}
