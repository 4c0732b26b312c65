package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/infra"
)

// MaxArtifactSize caps how much image data is accepted from the provider.
const MaxArtifactSize = 10 * 1024 * 1024

// DefaultSignedURLTTL bounds read URLs to days, not forever. Expired URLs
// are renewable by re-signing the stored key.
const DefaultSignedURLTTL = 72 * time.Hour

var artifactExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the durable backend the Writer persists artifacts into.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Writer downloads provider output from its transient URL and persists it
// into durable storage. Provider output URLs expire, so the fetch happens
// immediately, never deferred.
type Writer struct {
	store      ObjectStore
	httpClient *http.Client
	signedTTL  time.Duration
	logger     *infra.Logger
	now        func() time.Time
}

// WriterOptions configures a Writer. Store is required.
type WriterOptions struct {
	Store        ObjectStore
	HTTPClient   *http.Client
	SignedURLTTL time.Duration
	Logger       *infra.Logger
	Now          func() time.Time
}

// NewWriter constructs a Writer with sane defaults.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("storage: object store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ttl := opts.SignedURLTTL
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Writer{
		store:      opts.Store,
		httpClient: httpClient,
		signedTTL:  ttl,
		logger:     logger,
		now:        now,
	}, nil
}

// Persist fetches the artifact bytes at sourceURL, writes them under a key
// namespaced by owner, and returns a time-bounded signed read URL. Fetch
// and write failures are not retried; they surface as storage failures.
func (w *Writer) Persist(ctx context.Context, sourceURL, ownerID string) (domain.StoredImage, error) {
	data, contentType, err := w.fetch(ctx, sourceURL)
	if err != nil {
		return domain.StoredImage{}, domain.Wrap(domain.KindStorageWriteFailed, "failed to fetch generated image", err)
	}
	ext, ok := artifactExtensions[contentType]
	if !ok {
		return domain.StoredImage{}, domain.E(domain.KindStorageWriteFailed, fmt.Sprintf("unsupported artifact content type %q", contentType))
	}

	key := fmt.Sprintf("%s/%d-%s%s", ownerID, w.now().UnixNano(), uuid.NewString(), ext)
	if err := w.store.Write(ctx, key, data, contentType); err != nil {
		return domain.StoredImage{}, domain.Wrap(domain.KindStorageWriteFailed, "failed to persist artifact", err)
	}
	signedURL, err := w.store.SignedURL(ctx, key, w.signedTTL)
	if err != nil {
		return domain.StoredImage{}, domain.Wrap(domain.KindStorageWriteFailed, "failed to sign artifact url", err)
	}

	w.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Msg("storage: artifact persisted")
	return domain.StoredImage{Key: key, URL: signedURL}, nil
}

func (w *Writer) fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("invalid source url: %q", sourceURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}
	if len(data) > MaxArtifactSize {
		return nil, "", fmt.Errorf("artifact exceeds %d bytes", MaxArtifactSize)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return data, contentType, nil
}
