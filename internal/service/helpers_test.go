package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/digkill/chimeralens/internal/id"
	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createAccount(t *testing.T, db *sql.DB, guest bool, credits int) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:      id.NewAccountID(),
		IsGuest: guest,
		Credits: credits,
	}
	if guest {
		account.GuestToken = "tok-" + account.ID
	} else {
		account.Email = account.ID + "@example.com"
	}
	created, err := repository.NewAccountRepository(db).Create(context.Background(), account)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return created
}

func balanceOf(t *testing.T, db *sql.DB, accountID string) int {
	t.Helper()
	balance, err := ledger.Balance(context.Background(), db, accountID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

type fakeRunner struct {
	mu     sync.Mutex
	output any
	err    error
	block  bool
	onRun  func()
	calls  int
	inputs []map[string]any
}

func (f *fakeRunner) Run(ctx context.Context, modelID string, input map[string]any) (any, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun()
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.output, f.err
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   []string
	uploadErr error
	fetchErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("https://cdn.test/uploads/%d", len(f.objects))
	f.objects[url] = data
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeStorage) UploadFromURL(ctx context.Context, sourceURL string) (string, error) {
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.Upload(ctx, []byte("result:"+sourceURL), "image/png")
}

func (f *fakeStorage) Open(ctx context.Context, publicURL string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[publicURL]
	if !ok {
		return nil, "", errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/png", nil
}

type fakeIntents struct {
	meta map[string]map[string]string
	err  error
}

func (f *fakeIntents) PaymentIntentMetadata(ctx context.Context, paymentIntentID string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta[paymentIntentID], nil
}
