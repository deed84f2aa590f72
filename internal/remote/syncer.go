package remote

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"crossfund/internal/metrics"
	"crossfund/internal/model"
)

const (
	DefaultQueueSize   = 1024
	DefaultCallTimeout = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// Options configures a Syncer. Zero values fall back to the defaults.
type Options struct {
	QueueSize   int
	CallTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Syncer persists records through an outbox queue and reloads them on demand.
// Failures are logged and counted, never returned to the ledger.
type Syncer struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
	queue   chan model.Contribution
}

func NewSyncer(backend Backend, opts Options, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Syncer{
		backend: backend,
		opts:    opts,
		logger:  logger,
		queue:   make(chan model.Contribution, opts.QueueSize),
	}
}

// Persist enqueues rec for the worker. It never blocks; a full queue drops the record.
func (s *Syncer) Persist(rec model.Contribution) {
	select {
	case s.queue <- rec:
		metrics.OutboxDepth.Set(float64(len(s.queue)))
	default:
		metrics.PersistenceFailures.WithLabelValues("queue_full").Inc()
		s.logger.Error("persistence queue full, dropping contribution",
			zap.String("contribution_id", rec.ID),
			zap.String("project_id", rec.ProjectID),
		)
	}
}

// Fetch returns the backend's records for a project, or an empty slice on failure.
func (s *Syncer) Fetch(ctx context.Context, projectID string) []model.Contribution {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	recs, err := s.backend.List(ctx, projectID)
	if err != nil {
		s.logger.Warn("fetch contributions failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return []model.Contribution{}
	}

	out := make([]model.Contribution, 0, len(recs))
	for _, rec := range recs {
		out = append(out, normalizeFetched(projectID, rec))
	}
	return out
}

// Run drains the queue until ctx is done, then flushes what is left
// with a bounded grace period.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("persistence worker started", zap.Int("queue_size", s.opts.QueueSize))
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), s.opts.CallTimeout)
			n := s.Flush(flushCtx)
			cancel()
			s.logger.Info("persistence worker stopped", zap.Int("persisted", n))
			return ctx.Err()
		case rec := <-s.queue:
			metrics.OutboxDepth.Set(float64(len(s.queue)))
			s.persistOne(ctx, rec)
		}
	}
}

// Flush persists every record queued so far and returns how many the backend
// accepted.
func (s *Syncer) Flush(ctx context.Context) int {
	n := 0
	for {
		select {
		case rec := <-s.queue:
			metrics.OutboxDepth.Set(float64(len(s.queue)))
			if s.persistOne(ctx, rec) {
				n++
			}
		default:
			return n
		}
	}
}

// Pending returns the number of queued records.
func (s *Syncer) Pending() int {
	return len(s.queue)
}

func (s *Syncer) persistOne(ctx context.Context, rec model.Contribution) bool {
	err := withRetry(ctx, s.opts.MaxRetries, s.opts.RetryDelay, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
		return s.backend.Create(callCtx, rec)
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("backend").Inc()
		s.logger.Warn("persist contribution failed",
			zap.String("contribution_id", rec.ID),
			zap.String("project_id", rec.ProjectID),
			zap.Error(err),
		)
		return false
	}
	metrics.ContributionsPersisted.Inc()
	s.logger.Debug("contribution persisted", zap.String("contribution_id", rec.ID))
	return true
}

// normalizeFetched fills fields older backend rows may lack.
func normalizeFetched(projectID string, rec model.Contribution) model.Contribution {
	if rec.ProjectID == "" {
		rec.ProjectID = projectID
	}
	rec.Chain = model.Chain(strings.ToLower(string(rec.Chain)))
	rec.Currency = model.Currency(strings.ToUpper(string(rec.Currency)))
	if rec.ID == "" && rec.TxHash != "" {
		rec.ID = model.DeriveID(rec.Chain, rec.TxHash)
	}
	if rec.Status == "" {
		rec.Status = model.StatusConfirmed
	}
	return rec
}
