// Package provider talks to the hosted AI backends that perform face swaps.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/chimeralens/internal/config"
)

// Runner executes one model invocation and returns the raw provider output,
// which is a URL string or a list of URLs.
type Runner interface {
	Run(ctx context.Context, modelID string, input map[string]any) (any, error)
}

// New returns the backend selected by cfg.AIProvider.
func New(cfg config.Config, log *slog.Logger) (Runner, error) {
	switch cfg.AIProvider {
	case "replicate":
		r, err := NewReplicate(cfg, log)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "kie":
		return NewKIE(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AIProvider)
	}
}

func httpTimeout(cfg config.Config) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 5 * time.Minute
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
