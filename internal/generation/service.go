package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vastuchitra/internal/domain"
	"vastuchitra/internal/infra"
)

// Service orchestrates the image-generation request lifecycle: validate,
// reserve quota, submit and poll the provider job, persist the artifact,
// commit quota, record the result. Stages run strictly in that order; a
// failure in any stage terminates the request with no pipeline-level retry
// and no compensation of earlier stages.
type Service struct {
	ledger    domain.Ledger
	provider  domain.GenerationProvider
	artifacts domain.ArtifactWriter
	records   domain.RecordRepository
	logger    *infra.Logger
	now       func() time.Time
}

// ServiceOptions configures a Service. Ledger, Provider, Artifacts and
// Records are required; the rest default sensibly.
type ServiceOptions struct {
	Ledger    domain.Ledger
	Provider  domain.GenerationProvider
	Artifacts domain.ArtifactWriter
	Records   domain.RecordRepository
	Logger    *infra.Logger
	Now       func() time.Time
}

// NewService constructs a Service from explicitly injected collaborators.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Ledger == nil || opts.Provider == nil || opts.Artifacts == nil || opts.Records == nil {
		return nil, errors.New("generation: ledger, provider, artifacts and records are required")
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
	return &Service{
		ledger:    opts.Ledger,
		provider:  opts.Provider,
		artifacts: opts.Artifacts,
		records:   opts.Records,
		logger:    logger,
		now:       now,
	}, nil
}

// Generate runs one request through the full pipeline and returns either a
// complete record or a classified error, never a partial record.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationRecord, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.E(domain.KindUnauthenticated, "caller identity is required")
	}

	req, err := Validate(req)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.CheckAndReserve(ctx, req.UserID); err != nil {
		return nil, classify(err)
	}

	submit := req
	submit.Prompt = BuildPrompt(req.Prompt, req.Style)
	if submit.NegativePrompt == "" {
		submit.NegativePrompt = DefaultNegativePrompt
	}

	handle, err := s.provider.Submit(ctx, submit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("generation: submit failed")
		return nil, classify(err)
	}

	outputs, err := s.provider.AwaitCompletion(ctx, handle)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", handle.ID).Msg("generation: job did not succeed")
		return nil, classify(err)
	}

	stored, err := s.artifacts.Persist(ctx, outputs[0], req.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", handle.ID).Msg("generation: artifact persist failed")
		return nil, classify(err)
	}

	// A canceled request must not consume quota, even though the artifact
	// may already be written. Orphaned objects are accepted, not swept.
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "request canceled", err)
	}

	if err := s.ledger.Commit(ctx, req.UserID); err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("generation: quota commit failed")
		return nil, classify(err)
	}

	rec := &domain.GenerationRecord{
		ID:         uuid.NewString(),
		OwnerID:    req.UserID,
		Prompt:     req.Prompt,
		Style:      req.Style,
		ImageURL:   stored.URL,
		StorageKey: stored.Key,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.records.Save(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("record_id", rec.ID).Msg("generation: record save failed")
		return nil, classify(err)
	}

	s.logger.Info().
		Str("record_id", rec.ID).
		Str("user_id", req.UserID).
		Str("job_id", handle.ID).
		Msg("generation: completed")
	return rec, nil
}

// Gallery lists the caller's completed generations, newest first.
func (s *Service) Gallery(ctx context.Context, userID string, limit, offset int) ([]domain.GenerationRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.E(domain.KindUnauthenticated, "caller identity is required")
	}
	recs, err := s.records.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	return recs, nil
}

// classify keeps domain errors intact and wraps anything unanticipated as
// an internal error so callers only ever see the taxonomy kinds.
func classify(err error) error {
	var e *domain.Error
	if errors.As(err, &e) {
		return err
	}
	return domain.Wrap(domain.KindInternal, "internal error", err)
}
