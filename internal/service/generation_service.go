package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/chimeralens/internal/catalog"
	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/id"
	"github.com/digkill/chimeralens/internal/imaging"
	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/provider"
	"github.com/digkill/chimeralens/internal/repository"
)

// Storage is the durable object store behind generation images.
type Storage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	UploadFromURL(ctx context.Context, sourceURL string) (string, error)
	Open(ctx context.Context, publicURL string) (io.ReadCloser, string, error)
}

type GenerationService struct {
	db          *sql.DB
	log         *slog.Logger
	templates   *catalog.Templates
	models      *catalog.Models
	generations *repository.GenerationRepository
	provider    provider.Runner
	storage     Storage
	timeout     time.Duration
}

type GenerationRequest struct {
	TemplateID    string
	ModelKey      string
	Options       map[string]any
	FaceSelection *models.FaceSelection
	SourceImage   []byte
	ContentType   string
}

type GenerationResult struct {
	GenerationID     string `json:"generationId"`
	ResultImageURL   string `json:"resultImageUrl"`
	RemainingCredits int    `json:"remainingCredits"`
}

type GenerationPage struct {
	Items []models.Generation `json:"items"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

func NewGenerationService(db *sql.DB, log *slog.Logger, templates *catalog.Templates, registry *catalog.Models, generations *repository.GenerationRepository, runner provider.Runner, storage Storage, timeout time.Duration) *GenerationService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GenerationService{
		db:          db,
		log:         log,
		templates:   templates,
		models:      registry,
		generations: generations,
		provider:    runner,
		storage:     storage,
		timeout:     timeout,
	}
}

// Generate runs one face swap for account. On any failure the ledger is left
// untouched; uploads that already happened are orphaned.
func (s *GenerationService) Generate(ctx context.Context, account *models.Account, req GenerationRequest) (*GenerationResult, error) {
	template, ok := s.templates.Find(req.TemplateID)
	if !ok {
		return nil, ErrTemplateNotFound
	}
	if template.IsPremium && account.IsGuest {
		return nil, ErrPremiumLocked
	}
	cost := template.EffectiveCost()
	// Advisory only. The conditional decrement at commit is authoritative.
	if account.Credits < cost {
		return nil, ErrInsufficientCredits
	}
	model, ok := s.models.Find(req.ModelKey)
	if !ok {
		return nil, ErrModelNotFound
	}
	if len(req.SourceImage) == 0 {
		return nil, fmt.Errorf("%w: source image is empty", ErrInvalidInput)
	}

	sourceURL, processURL, err := s.uploadSource(ctx, req)
	if err != nil {
		return nil, err
	}

	resultURL, err := s.run(ctx, account, model, processURL, template.ImageURL, req.Options)
	if err != nil {
		return nil, err
	}

	permanentURL, err := s.storage.UploadFromURL(ctx, resultURL)
	if err != nil {
		s.log.Error("materialize result failed", "account_id", account.ID, "err", err)
		return nil, fmt.Errorf("%w: store result: %v", ErrGenerationFailed, err)
	}

	generation := &models.Generation{
		ID:               id.NewGenerationID(),
		AccountID:        account.ID,
		TemplateID:       template.ID,
		ModelKey:         model.Key,
		SourceImageURL:   sourceURL,
		TemplateImageURL: template.ImageURL,
		ResultImageURL:   permanentURL,
		Cost:             cost,
		CreatedAt:        database.Now(),
	}

	var balance int
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		balance, err = ledger.Decrement(ctx, tx, account.ID, cost)
		if err != nil {
			return err
		}
		return s.generations.Create(ctx, tx, generation)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			s.log.Warn("generation lost affordability race", "account_id", account.ID, "cost", cost)
			return nil, ErrInsufficientCredits
		}
		s.log.Error("commit generation failed", "account_id", account.ID, "err", err)
		return nil, fmt.Errorf("%w: commit: %v", ErrGenerationFailed, err)
	}

	account.Credits = balance
	s.log.Info("generation completed", "account_id", account.ID, "generation_id", generation.ID, "template_id", template.ID, "model", model.Key, "cost", cost, "balance", balance)
	return &GenerationResult{
		GenerationID:     generation.ID,
		ResultImageURL:   permanentURL,
		RemainingCredits: balance,
	}, nil
}

// uploadSource stores the original upload and, when a face box was given,
// the cropped copy sent to the provider.
func (s *GenerationService) uploadSource(ctx context.Context, req GenerationRequest) (string, string, error) {
	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(req.SourceImage)
	}

	var cropped []byte
	var croppedType string
	if req.FaceSelection != nil {
		var err error
		cropped, croppedType, err = imaging.Crop(req.SourceImage, *req.FaceSelection)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidSelection, err)
		}
	}

	sourceURL, err := s.storage.Upload(ctx, req.SourceImage, contentType)
	if err != nil {
		s.log.Error("upload source failed", "err", err)
		return "", "", fmt.Errorf("%w: upload source: %v", ErrGenerationFailed, err)
	}
	if cropped == nil {
		return sourceURL, sourceURL, nil
	}

	processURL, err := s.storage.Upload(ctx, cropped, croppedType)
	if err != nil {
		s.log.Error("upload cropped source failed", "err", err)
		return "", "", fmt.Errorf("%w: upload crop: %v", ErrGenerationFailed, err)
	}
	return sourceURL, processURL, nil
}

func (s *GenerationService) run(ctx context.Context, account *models.Account, model catalog.Model, sourceURL, templateURL string, options map[string]any) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := model.FormatInput(sourceURL, templateURL, options)
	output, err := s.provider.Run(runCtx, model.ProviderID, input)
	if err != nil {
		classified := classifyProviderError(err)
		s.log.Warn("provider run failed", "account_id", account.ID, "model", model.Key, "kind", classified, "err", err)
		return "", fmt.Errorf("%w: %v", classified, err)
	}

	resultURL, ok := extractResultURL(output)
	if !ok {
		s.log.Error("provider returned no usable url", "account_id", account.ID, "model", model.Key, "output", fmt.Sprintf("%v", output))
		return "", fmt.Errorf("%w: provider returned no result url", ErrGenerationFailed)
	}
	return resultURL, nil
}

// classifyProviderError maps free-form provider messages onto the generation
// error kinds.
func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrGenerationFailed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "face"):
		return ErrFaceNotDetected
	case strings.Contains(msg, "nsfw"),
		strings.Contains(msg, "safety"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "flagged"):
		return ErrContentPolicyBlocked
	default:
		return ErrGenerationFailed
	}
}

// extractResultURL accepts a URL string or a list whose first element is one.
func extractResultURL(output any) (string, bool) {
	var first any
	switch v := output.(type) {
	case string:
		first = v
	case []string:
		if len(v) > 0 {
			first = v[0]
		}
	case []any:
		if len(v) > 0 {
			first = v[0]
		}
	}
	url, ok := first.(string)
	url = strings.TrimSpace(url)
	return url, ok && url != ""
}

func (s *GenerationService) List(ctx context.Context, account *models.Account, page, limit int) (*GenerationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, err := s.generations.ListByAccount(ctx, account.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.generations.CountByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &GenerationPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Get returns a generation owned by account.
func (s *GenerationService) Get(ctx context.Context, account *models.Account, generationID string) (*models.Generation, error) {
	generation, err := s.generations.FindByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if generation == nil {
		return nil, ErrGenerationNotFound
	}
	if generation.AccountID != account.ID {
		return nil, ErrNotOwner
	}
	return generation, nil
}

// Download opens the stored result image. Only the owner may read it.
func (s *GenerationService) Download(ctx context.Context, account *models.Account, generationID string) (io.ReadCloser, string, *models.Generation, error) {
	generation, err := s.Get(ctx, account, generationID)
	if err != nil {
		return nil, "", nil, err
	}
	body, contentType, err := s.storage.Open(ctx, generation.ResultImageURL)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open result: %w", err)
	}
	return body, contentType, generation, nil
}
