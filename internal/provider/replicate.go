package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/replicate/replicate-go"

	"github.com/digkill/chimeralens/internal/config"
)

// Replicate runs models through the Replicate predictions API.
type Replicate struct {
	client       *replicate.Client
	log          *slog.Logger
	pollInterval time.Duration
}

func NewReplicate(cfg config.Config, log *slog.Logger) (*Replicate, error) {
	if cfg.ReplicateAPIToken == "" {
		return nil, errors.New("replicate api token is required")
	}
	client, err := replicate.NewClient(
		replicate.WithToken(cfg.ReplicateAPIToken),
		replicate.WithBaseURL(strings.TrimRight(cfg.ReplicateBaseURL, "/")+"/v1"),
		replicate.WithHTTPClient(&http.Client{Timeout: httpTimeout(cfg)}),
	)
	if err != nil {
		return nil, fmt.Errorf("replicate client: %w", err)
	}
	return &Replicate{client: client, log: log, pollInterval: time.Second}, nil
}

// Run creates a prediction and waits for it to settle. modelID is either
// "owner/name:version" or "owner/name" for official models.
func (r *Replicate) Run(ctx context.Context, modelID string, input map[string]any) (any, error) {
	if r.log != nil {
		r.log.Info("creating replicate prediction", "model", modelID)
	}
	pred, err := r.create(ctx, modelID, replicate.PredictionInput(input))
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}

	if !settled(pred.Status) {
		if err := r.client.Wait(ctx, pred, replicate.WithPollingInterval(r.pollInterval)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("wait prediction %s: %w", pred.ID, ctxErr)
			}
			return nil, fmt.Errorf("wait prediction %s: %w", pred.ID, err)
		}
	}

	switch pred.Status {
	case replicate.Succeeded:
		if r.log != nil {
			r.log.Info("replicate prediction completed", "prediction_id", pred.ID)
		}
		return any(pred.Output), nil
	case replicate.Failed, replicate.Canceled:
		if pred.Error != nil {
			return nil, fmt.Errorf("replicate: %v", pred.Error)
		}
		return nil, fmt.Errorf("replicate: prediction %s", pred.Status)
	default:
		return nil, fmt.Errorf("unknown prediction status: %s", pred.Status)
	}
}

func (r *Replicate) create(ctx context.Context, modelID string, input replicate.PredictionInput) (*replicate.Prediction, error) {
	if name, version, ok := strings.Cut(modelID, ":"); ok && name != "" {
		return r.client.CreatePrediction(ctx, version, input, nil, false)
	}
	owner, name, ok := strings.Cut(modelID, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid model id %q", modelID)
	}
	return r.client.CreatePredictionWithModel(ctx, owner, name, input, nil, false)
}

func settled(status replicate.Status) bool {
	switch status {
	case replicate.Succeeded, replicate.Failed, replicate.Canceled:
		return true
	}
	return false
}
