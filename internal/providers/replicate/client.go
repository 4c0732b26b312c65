package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// defaultModelVersion is the architecture-tuned SDXL fine-tune the product
// generates with unless configured otherwise.
const defaultModelVersion = "davisbrown/designer-architecture:0d6f0893b05f14500ce03e45f54290cbffb907d14db49699f2823d0fd35def46"

// Options configures the Replicate predictions client.
type Options struct {
	APIToken        string
	BaseURL         string
	ModelVersion    string
	AspectRatio     string
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPClient      *http.Client
	Logger          *infra.Logger
	RequestTimeout  time.Duration
}

// Client submits predictions to the Replicate API and polls them to a
// terminal state. The prediction job lives provider-side; only the id is
// held here, for the duration of one request.
type Client struct {
	apiToken        string
	baseURL         string
	modelVersion    string
	aspectRatio     string
	pollInterval    time.Duration
	maxPollAttempts int
	httpClient      *http.Client
	logger          *infra.Logger
}

type predictionInput struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	NumOutputs     int     `json:"num_outputs"`
	AspectRatio    string  `json:"aspect_ratio"`
	GuidanceScale  float64 `json:"guidance_scale"`
	OutputQuality  int     `json:"output_quality"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
	Detail string   `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	modelVersion := strings.TrimSpace(opts.ModelVersion)
	if modelVersion == "" {
		modelVersion = defaultModelVersion
	}
	aspectRatio := strings.TrimSpace(opts.AspectRatio)
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxPollAttempts := opts.MaxPollAttempts
	if maxPollAttempts <= 0 {
		maxPollAttempts = 3
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiToken:        strings.TrimSpace(opts.APIToken),
		baseURL:         baseURL,
		modelVersion:    modelVersion,
		aspectRatio:     aspectRatio,
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
		httpClient:      httpClient,
		logger:          logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiToken != ""
}

// Submit creates a prediction and returns its handle without waiting for
// completion.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (domain.JobHandle, error) {
	if !c.HasCredentials() {
		return domain.JobHandle{}, ErrMissingAPIToken
	}
	payload := predictionRequest{
		Version: c.modelVersion,
		Input: predictionInput{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			NumOutputs:     1,
			AspectRatio:    c.aspectRatio,
			GuidanceScale:  7.5,
			OutputQuality:  100,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("replicate: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.apiToken)

	decoded, err := c.do(httpReq)
	if err != nil {
		return domain.JobHandle{}, domain.Wrap(domain.KindUpstreamFailed, "provider rejected job submission", err)
	}
	if decoded.ID == "" {
		return domain.JobHandle{}, domain.E(domain.KindUpstreamFailed, "provider returned no job id")
	}
	c.logger.Debug().
		Str("job_id", decoded.ID).
		Str("status", decoded.Status).
		Msg("replicate: prediction submitted")
	return domain.JobHandle{ID: decoded.ID}, nil
}

// AwaitCompletion polls the prediction until it reaches a terminal state,
// bounded by the configured attempt budget. The wait between polls is
// cancellable through ctx.
func (c *Client) AwaitCompletion(ctx context.Context, handle domain.JobHandle) ([]string, error) {
	if handle.ID == "" {
		return nil, domain.E(domain.KindUpstreamFailed, "empty job handle")
	}
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		resp, err := c.poll(ctx, handle.ID)
		if err != nil {
			return nil, domain.Wrap(domain.KindUpstreamFailed, "provider status query failed", err)
		}
		status := normalizeStatus(resp.Status)
		switch status {
		case domain.JobStatusSucceeded:
			if len(resp.Output) == 0 {
				return nil, domain.E(domain.KindUpstreamFailed, "no output")
			}
			return resp.Output, nil
		case domain.JobStatusFailed, domain.JobStatusCanceled:
			msg := fmt.Sprintf("generation %s", status)
			if resp.Error != "" {
				msg = fmt.Sprintf("generation %s: %s", status, resp.Error)
			}
			return nil, domain.E(domain.KindUpstreamFailed, msg)
		}
		c.logger.Debug().
			Str("job_id", handle.ID).
			Str("status", string(status)).
			Int("attempt", attempt).
			Msg("replicate: prediction not ready")
		if attempt < c.maxPollAttempts {
			if err := sleep(ctx, c.pollInterval); err != nil {
				return nil, domain.Wrap(domain.KindInternal, "request canceled", err)
			}
		}
	}
	return nil, domain.E(domain.KindUpstreamTimeout, "generation did not complete within the polling budget")
}

func (c *Client) poll(ctx context.Context, jobID string) (*predictionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiToken)
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*predictionResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}
	var decoded predictionResponse
	if resp.StatusCode >= 300 {
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Detail != "" {
			return nil, fmt.Errorf("replicate: %s (status %d)", decoded.Detail, resp.StatusCode)
		}
		return nil, fmt.Errorf("replicate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	return &decoded, nil
}

// normalizeStatus maps provider status strings onto the internal vocabulary.
func normalizeStatus(s string) domain.JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting":
		return domain.JobStatusPending
	case "processing":
		return domain.JobStatusProcessing
	case "succeeded":
		return domain.JobStatusSucceeded
	case "failed":
		return domain.JobStatusFailed
	case "canceled":
		return domain.JobStatusCanceled
	}
	return domain.JobStatusPending
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
