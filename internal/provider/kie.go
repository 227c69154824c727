package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/chimeralens/internal/config"
)

// KIE runs models through the KIE async jobs API: create a task, then poll
// its record until it settles.
type KIE struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	log          *slog.Logger
	maxAttempts  int
	pollInterval time.Duration
}

func NewKIE(cfg config.Config, log *slog.Logger) *KIE {
	return &KIE{
		apiKey:       cfg.KIEAPIKey,
		baseURL:      strings.TrimRight(cfg.KIEBaseURL, "/"),
		httpClient:   &http.Client{Timeout: httpTimeout(cfg)},
		log:          log,
		maxAttempts:  60,
		pollInterval: 2 * time.Second,
	}
}

type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Run returns the task's result URLs as []string.
func (k *KIE) Run(ctx context.Context, modelID string, input map[string]any) (any, error) {
	taskID, err := k.createTask(ctx, modelID, input)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return k.pollTask(ctx, taskID)
}

func (k *KIE) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(k.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func (k *KIE) createTask(ctx context.Context, modelID string, input map[string]any) (string, error) {
	fullURL, err := k.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]any{"model": modelID, "input": input})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if k.log != nil {
		k.log.Info("creating KIE task", "url", fullURL, "model", modelID)
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := k.do(req, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", errors.New("empty taskId in response")
	}
	return data.TaskID, nil
}

func (k *KIE) pollTask(ctx context.Context, taskID string) ([]string, error) {
	fullURL, err := k.endpoint("/api/v1/jobs/recordInfo", url.Values{"taskId": {taskID}})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < k.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}

		var data struct {
			State      string `json:"state"`
			ResultJSON string `json:"resultJson"`
			FailCode   string `json:"failCode"`
			FailMsg    string `json:"failMsg"`
		}
		if err := k.do(req, &data); err != nil {
			return nil, fmt.Errorf("get task status: %w", err)
		}

		switch data.State {
		case "success":
			var result struct {
				ResultURLs []string `json:"resultUrls"`
			}
			if err := json.Unmarshal([]byte(data.ResultJSON), &result); err != nil {
				return nil, fmt.Errorf("parse resultJson: %w", err)
			}
			if k.log != nil {
				k.log.Info("KIE task completed", "task_id", taskID, "attempt", attempt+1)
			}
			return result.ResultURLs, nil
		case "fail":
			msg := data.FailMsg
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("task failed: %s (code: %s)", msg, data.FailCode)
		case "waiting", "generating", "processing", "queued", "queueing":
			if k.log != nil && attempt%10 == 0 {
				k.log.Info("KIE task waiting", "task_id", taskID, "attempt", attempt+1)
			}
			if err := sleep(ctx, k.pollInterval); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown task state: %s", data.State)
		}
	}
	return nil, fmt.Errorf("task timeout after %d attempts", k.maxAttempts)
}

func (k *KIE) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+k.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if k.log != nil {
			k.log.Error("KIE request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(raw))
		}
		return fmt.Errorf("kie error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}

	var env kieEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	if env.Code != 200 {
		return fmt.Errorf("kie error: code=%d msg=%s", env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
