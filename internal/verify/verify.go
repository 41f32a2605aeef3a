// Package verify decides whether a submitted address exists in the reference
// store. An exact structured lookup is tried first; on a miss a keyword
// lookup and a similarity ranking propose the closest stored address.
package verify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/similarity"
	"github.com/TFMV/avs/internal/store"
)

// Defaults applied to zero Config fields.
const (
	DefaultQueryTimeout    = 5 * time.Second
	DefaultSimilarityFloor = 30
)

// Config tunes the resolvers.
type Config struct {
	// QueryTimeout bounds every store lookup of one verification.
	QueryTimeout time.Duration
	// SimilarityFloor is the lowest 0-100 score a near match may have.
	SimilarityFloor int
	// FuzzyCandidateLimit caps the keyword candidates scored per request.
	FuzzyCandidateLimit int
	// Similarity scores street lines; partial ratio when nil.
	Similarity similarity.Function
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:        DefaultQueryTimeout,
		SimilarityFloor:     DefaultSimilarityFloor,
		FuzzyCandidateLimit: query.DefaultFuzzyLimit,
		Similarity:          similarity.PartialRatio{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	if c.SimilarityFloor <= 0 {
		c.SimilarityFloor = d.SimilarityFloor
	}
	if c.FuzzyCandidateLimit <= 0 {
		c.FuzzyCandidateLimit = d.FuzzyCandidateLimit
	}
	if c.Similarity == nil {
		c.Similarity = d.Similarity
	}
	return c
}

// Options are the per-request switches.
type Options struct {
	// SuppressRecommendation omits the recommended and near-match payloads.
	SuppressRecommendation bool
}

// Observer receives one call per finished verification.
type Observer interface {
	ObserveVerification(outcome Outcome, candidates int, elapsed time.Duration)
}

// Service represents the verification service
type Service struct {
	store    store.AddressStore
	cfg      Config
	logger   *zap.Logger
	observer Observer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a new verification service over st
func NewService(st store.AddressStore, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Verify validates a, looks it up exactly and falls back to a near match on
// a miss. It returns an *address.ValidationError for invalid input, a
// *store.Error when the store fails and an *UnexpectedError otherwise. The
// submitted address is never modified.
func (s *Service) Verify(ctx context.Context, a address.Address, opts Options) (*Result, error) {
	start := time.Now()
	submitted := a.Clone()

	if err := address.Validate(submitted); err != nil {
		s.observe(OutcomeInvalid, 0, start)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	res := &Result{
		Submitted:    submitted,
		Decision:     Failure,
		ResponseCode: ResponseCode,
		Suppressed:   opts.SuppressRecommendation,
	}

	// Exact match first
	rec, err := s.store.FindOne(ctx, query.BuildExact(submitted))
	switch {
	case err == nil:
		res.Verified = true
		res.Decision = Success
		res.MatchedID = rec.ID
		res.Recommendation = recommendExact(submitted, *rec)
		s.finish(res, 0, start)
		return res, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, s.fail("verify.exact", err, start)
	}

	// Fall back to keyword candidates ranked by street similarity
	recs, err := s.store.TextSearch(ctx, query.BuildFuzzy(submitted, s.cfg.FuzzyCandidateLimit))
	if err != nil {
		return nil, s.fail("verify.fuzzy", err, start)
	}

	res.NearMatch = &NearMatch{Candidates: len(recs)}
	ranked := rankCandidates(s.cfg.Similarity, s.cfg.SimilarityFloor, submitted.AddressLine1, recs)
	if len(ranked) > 0 {
		best := ranked[0]
		res.NearMatch.Address = recommendNear(best.rec)
		res.NearMatch.RecordID = best.rec.ID
		res.NearMatch.Score = best.score
	}

	s.finish(res, len(recs), start)
	return res, nil
}

func (s *Service) finish(res *Result, candidates int, start time.Time) {
	outcome := res.Outcome()
	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Bool("verified", res.Verified),
		zap.Int("candidates", candidates),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.NearMatch != nil && res.NearMatch.Address != nil {
		fields = append(fields,
			zap.String("near_match_id", res.NearMatch.RecordID),
			zap.Int("score", res.NearMatch.Score))
	}
	s.logger.Debug("address verified", fields...)
	s.observe(outcome, candidates, start)
}

// fail classifies err. Store errors pass through untouched; anything else is
// wrapped so raw backend errors never reach callers.
func (s *Service) fail(op string, err error, start time.Time) error {
	s.observe(OutcomeError, 0, start)

	var se *store.Error
	if errors.As(err, &se) {
		s.logger.Error("record store failure", zap.String("op", op), zap.Error(err))
		return se
	}

	s.logger.Error("verification failed", zap.String("op", op), zap.Error(err))
	return &UnexpectedError{Op: op, Err: err}
}

func (s *Service) observe(outcome Outcome, candidates int, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveVerification(outcome, candidates, time.Since(start))
	}
}
