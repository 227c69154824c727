package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/digkill/chimeralens/internal/catalog"
	"github.com/digkill/chimeralens/internal/database/dbtest"
	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

type generationFixture struct {
	db      *sql.DB
	svc     *GenerationService
	runner  *fakeRunner
	storage *fakeStorage
	repo    *repository.GenerationRepository
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	db := dbtest.New(t)
	f := &generationFixture{
		db:      db,
		runner:  &fakeRunner{output: "https://provider.test/out.png"},
		storage: newFakeStorage(),
		repo:    repository.NewGenerationRepository(db),
	}
	f.svc = NewGenerationService(db, discardLogger(), catalog.DefaultTemplates(), catalog.DefaultModels(), f.repo, f.runner, f.storage, time.Second)
	return f
}

func (f *generationFixture) count(t *testing.T, accountID string) int {
	t.Helper()
	n, err := f.repo.CountByAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func basicRequest() GenerationRequest {
	return GenerationRequest{
		TemplateID:  "template-001",
		ModelKey:    "stable-swap-v1",
		SourceImage: []byte("jpeg-bytes"),
		ContentType: "image/jpeg",
	}
}

func TestGenerateSuccess(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, true, 10)

	res, err := f.svc.Generate(context.Background(), account, basicRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.RemainingCredits != 9 || account.Credits != 9 {
		t.Fatalf("expected 9 remaining, got %d", res.RemainingCredits)
	}
	if res.ResultImageURL == "" || res.GenerationID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := balanceOf(t, f.db, account.ID); got != 9 {
		t.Fatalf("ledger balance %d, want 9", got)
	}
	if n := f.count(t, account.ID); n != 1 {
		t.Fatalf("expected one generation row, got %d", n)
	}

	gen, err := f.repo.FindByID(context.Background(), res.GenerationID)
	if err != nil || gen == nil {
		t.Fatalf("find generation: %v", err)
	}
	if gen.Cost != 1 || gen.SourceImageURL != f.storage.uploads[0] || gen.ResultImageURL != res.ResultImageURL {
		t.Fatalf("unexpected generation %+v", gen)
	}
	if gen.TemplateImageURL == "" {
		t.Fatal("template image url not recorded")
	}

	input := f.runner.inputs[0]
	if input["swap_image"] != f.storage.uploads[0] {
		t.Fatalf("provider got %v, want source upload", input["swap_image"])
	}
}

func TestGenerateRejectsWithoutLedgerChange(t *testing.T) {
	tests := []struct {
		name      string
		guest     bool
		credits   int
		mutate    func(*GenerationRequest, *generationFixture)
		wantErr   error
		wantCalls int
	}{
		{
			name:    "zero credits",
			guest:   true,
			credits: 0,
			wantErr: ErrInsufficientCredits,
		},
		{
			name:    "unknown template",
			guest:   true,
			credits: 10,
			mutate:  func(r *GenerationRequest, _ *generationFixture) { r.TemplateID = "template-x" },
			wantErr: ErrTemplateNotFound,
		},
		{
			name:    "unknown model",
			guest:   true,
			credits: 10,
			mutate:  func(r *GenerationRequest, _ *generationFixture) { r.ModelKey = "nope" },
			wantErr: ErrModelNotFound,
		},
		{
			name:    "guest on premium",
			guest:   true,
			credits: 100,
			mutate:  func(r *GenerationRequest, _ *generationFixture) { r.TemplateID = "template-004" },
			wantErr: ErrPremiumLocked,
		},
		{
			name:    "below premium cost",
			guest:   false,
			credits: 1,
			mutate:  func(r *GenerationRequest, _ *generationFixture) { r.TemplateID = "template-004" },
			wantErr: ErrInsufficientCredits,
		},
		{
			name:    "face not detected",
			guest:   true,
			credits: 10,
			mutate: func(_ *GenerationRequest, f *generationFixture) {
				f.runner.err = errors.New("prediction failed: No face detected in swap_image")
			},
			wantErr:   ErrFaceNotDetected,
			wantCalls: 1,
		},
		{
			name:    "safety rejection",
			guest:   true,
			credits: 10,
			mutate: func(_ *GenerationRequest, f *generationFixture) {
				f.runner.err = errors.New("NSFW content detected")
			},
			wantErr:   ErrContentPolicyBlocked,
			wantCalls: 1,
		},
		{
			name:    "empty provider output",
			guest:   true,
			credits: 10,
			mutate: func(_ *GenerationRequest, f *generationFixture) {
				f.runner.output = []any{}
			},
			wantErr:   ErrGenerationFailed,
			wantCalls: 1,
		},
		{
			name:    "upload failure",
			guest:   true,
			credits: 10,
			mutate: func(_ *GenerationRequest, f *generationFixture) {
				f.storage.uploadErr = errors.New("s3 down")
			},
			wantErr: ErrGenerationFailed,
		},
		{
			name:    "result materialization failure",
			guest:   true,
			credits: 10,
			mutate: func(_ *GenerationRequest, f *generationFixture) {
				f.storage.fetchErr = errors.New("expired url")
			},
			wantErr:   ErrGenerationFailed,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGenerationFixture(t)
			account := createAccount(t, f.db, tt.guest, tt.credits)
			req := basicRequest()
			if tt.mutate != nil {
				tt.mutate(&req, f)
			}

			_, err := f.svc.Generate(context.Background(), account, req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if got := balanceOf(t, f.db, account.ID); got != tt.credits {
				t.Fatalf("balance changed to %d, want %d", got, tt.credits)
			}
			if n := f.count(t, account.ID); n != 0 {
				t.Fatalf("expected no generation rows, got %d", n)
			}
			if f.runner.calls != tt.wantCalls {
				t.Fatalf("provider called %d times, want %d", f.runner.calls, tt.wantCalls)
			}
		})
	}
}

func TestGeneratePremiumForRegistered(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, false, 5)

	req := basicRequest()
	req.TemplateID = "template-004"
	res, err := f.svc.Generate(context.Background(), account, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.RemainingCredits != 3 {
		t.Fatalf("expected premium cost 2 to leave 3, got %d", res.RemainingCredits)
	}
}

func TestGenerateTimeoutLeavesLedger(t *testing.T) {
	f := newGenerationFixture(t)
	f.svc.timeout = 10 * time.Millisecond
	f.runner.block = true
	account := createAccount(t, f.db, true, 10)

	_, err := f.svc.Generate(context.Background(), account, basicRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if got := balanceOf(t, f.db, account.ID); got != 10 {
		t.Fatalf("balance %d, want 10", got)
	}
}

func TestGenerateCommitIsAtomic(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, true, 10)
	// The generation insert fails after the decrement inside the same tx.
	f.runner.onRun = func() {
		if _, err := f.db.Exec(`DROP TABLE generations`); err != nil {
			t.Errorf("drop table: %v", err)
		}
	}

	_, err := f.svc.Generate(context.Background(), account, basicRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if got := balanceOf(t, f.db, account.ID); got != 10 {
		t.Fatalf("decrement survived a failed insert: balance %d", got)
	}
}

func TestGenerateLateAffordabilityFailure(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, true, 1)
	// A concurrent request spends the last credit while the provider runs.
	f.runner.onRun = func() {
		if _, err := ledger.Decrement(context.Background(), f.db, account.ID, 1); err != nil {
			t.Errorf("concurrent spend: %v", err)
		}
	}

	_, err := f.svc.Generate(context.Background(), account, basicRequest())
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if f.runner.calls != 1 {
		t.Fatalf("expected the provider call to have happened, got %d", f.runner.calls)
	}
	if got := balanceOf(t, f.db, account.ID); got != 0 {
		t.Fatalf("balance %d, want 0", got)
	}
	if n := f.count(t, account.ID); n != 0 {
		t.Fatalf("expected no generation rows, got %d", n)
	}
}

func TestGenerateWithFaceSelection(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, true, 10)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := basicRequest()
	req.SourceImage = buf.Bytes()
	req.ContentType = "image/png"
	req.FaceSelection = &models.FaceSelection{X: 8, Y: 8, Width: 32, Height: 32}

	res, err := f.svc.Generate(context.Background(), account, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(f.storage.uploads) != 3 {
		t.Fatalf("expected original, crop and result uploads, got %v", f.storage.uploads)
	}
	original, cropped := f.storage.uploads[0], f.storage.uploads[1]
	if f.runner.inputs[0]["swap_image"] != cropped {
		t.Fatalf("provider should receive the cropped upload, got %v", f.runner.inputs[0]["swap_image"])
	}
	gen, _ := f.repo.FindByID(context.Background(), res.GenerationID)
	if gen.SourceImageURL != original {
		t.Fatalf("generation should keep the original source, got %s", gen.SourceImageURL)
	}

	req.FaceSelection = &models.FaceSelection{X: 500, Y: 500, Width: 10, Height: 10}
	if _, err := f.svc.Generate(context.Background(), account, req); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Face not found", ErrFaceNotDetected},
		{"no faces in target", ErrFaceNotDetected},
		{"NSFW content detected", ErrContentPolicyBlocked},
		{"blocked by safety checker", ErrContentPolicyBlocked},
		{"violates content policy", ErrContentPolicyBlocked},
		{"input flagged", ErrContentPolicyBlocked},
		{"CUDA out of memory", ErrGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classifyProviderError(errors.New(tt.msg)); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if got := classifyProviderError(context.DeadlineExceeded); got != ErrGenerationFailed {
		t.Fatalf("timeout classified as %v", got)
	}
}

func TestExtractResultURL(t *testing.T) {
	tests := []struct {
		name   string
		output any
		want   string
		ok     bool
	}{
		{"string", "https://x/a.png", "https://x/a.png", true},
		{"string slice", []string{"https://x/b.png", "https://x/c.png"}, "https://x/b.png", true},
		{"any slice", []any{"https://x/d.png"}, "https://x/d.png", true},
		{"empty string", "  ", "", false},
		{"empty slice", []any{}, "", false},
		{"non-string element", []any{42}, "", false},
		{"nil", nil, "", false},
		{"map", map[string]any{"url": "x"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractResultURL(tt.output)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestGetAndDownloadOwnership(t *testing.T) {
	f := newGenerationFixture(t)
	owner := createAccount(t, f.db, true, 10)
	other := createAccount(t, f.db, true, 10)

	res, err := f.svc.Generate(context.Background(), owner, basicRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	body, contentType, gen, err := f.svc.Download(context.Background(), owner, res.GenerationID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if len(data) == 0 || contentType == "" || gen.ID != res.GenerationID {
		t.Fatalf("unexpected download (%d bytes, %q)", len(data), contentType)
	}

	if _, _, _, err := f.svc.Download(context.Background(), other, res.GenerationID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), other, res.GenerationID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), owner, "gen_missing"); !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	f := newGenerationFixture(t)
	account := createAccount(t, f.db, true, 10)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Generate(context.Background(), account, basicRequest()); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}

	page, err := f.svc.List(context.Background(), account, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("page 1: total=%d items=%d", page.Total, len(page.Items))
	}
	page, err = f.svc.List(context.Background(), account, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("page 2: items=%d", len(page.Items))
	}
}
