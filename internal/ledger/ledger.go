package ledger

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crossfund/internal/convert"
	"crossfund/internal/metrics"
	"crossfund/internal/model"
)

// EventContribution is emitted to subscribers for every new record.
const EventContribution = "contribution"

// PriceSource provides the current price snapshot.
type PriceSource interface {
	GetPrices(ctx context.Context) model.PriceSnapshot
}

// Sync persists and reloads records. Persist must not block.
type Sync interface {
	Persist(rec model.Contribution)
	Fetch(ctx context.Context, projectID string) []model.Contribution
}

// Subscriber receives ledger events synchronously.
type Subscriber func(event string, rec model.Contribution)

type subscription struct {
	id uint64
	fn Subscriber
}

// Ledger holds every project's contributions in insertion order.
type Ledger struct {
	prices PriceSource
	syncer Sync
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	projects map[string][]model.Contribution
	byID     map[string]model.Contribution

	subMu  sync.RWMutex
	subs   []subscription
	nextID uint64
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(prices PriceSource, syncer Sync, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		prices:   prices,
		syncer:   syncer,
		logger:   logger,
		now:      time.Now,
		projects: make(map[string][]model.Contribution),
		byID:     make(map[string]model.Contribution),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Input is the wallet-supplied tuple for a new contribution.
type Input struct {
	ProjectID   string
	Contributor string
	Chain       model.Chain
	Currency    model.Currency
	Amount      float64
	TxHash      string
}

func (in Input) validate() error {
	if strings.TrimSpace(in.ProjectID) == "" {
		return fmt.Errorf("%w: empty project id", model.ErrInvalidContribution)
	}
	if err := model.ValidateAmount(in.Amount); err != nil {
		return err
	}
	if !in.Currency.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedCurrency, in.Currency)
	}
	native, ok := in.Chain.NativeCurrency()
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedChain, in.Chain)
	}
	if native != in.Currency {
		return fmt.Errorf("%w: %s is not the native currency of %s", model.ErrUnsupportedCurrency, in.Currency, in.Chain)
	}
	if err := model.ValidateTxHash(in.TxHash); err != nil {
		return err
	}
	return model.ValidateContributor(in.Chain, in.Contributor)
}

// RecordContribution values a contribution at the current price, stores it as
// confirmed, notifies subscribers and queues it for persistence.
//
// Replaying an already stored contribution returns the stored record without
// side effects; reusing its id with different details fails with
// ErrDuplicateContribution.
func (l *Ledger) RecordContribution(ctx context.Context, in Input) (model.Contribution, error) {
	if err := in.validate(); err != nil {
		metrics.ContributionsRejected.WithLabelValues("invalid").Inc()
		return model.Contribution{}, fmt.Errorf("record contribution: %w", err)
	}

	snapshot := l.prices.GetPrices(ctx)
	usd, err := convert.ToUSD(in.Amount, in.Currency, snapshot)
	if err != nil {
		metrics.ContributionsRejected.WithLabelValues("conversion").Inc()
		return model.Contribution{}, fmt.Errorf("record contribution: %w", err)
	}

	pending := model.Contribution{
		ID:          model.DeriveID(in.Chain, in.TxHash),
		ProjectID:   strings.TrimSpace(in.ProjectID),
		Contributor: strings.TrimSpace(in.Contributor),
		Chain:       in.Chain,
		Currency:    in.Currency,
		Amount:      in.Amount,
		USDValue:    usd,
		TxHash:      model.NormalizeTxHash(in.Chain, in.TxHash),
		Timestamp:   l.now().UTC(),
		Status:      model.StatusPending,
	}
	rec, err := pending.Transition(model.StatusConfirmed)
	if err != nil {
		return model.Contribution{}, fmt.Errorf("record contribution: %w", err)
	}

	l.mu.Lock()
	if existing, ok := l.byID[rec.ID]; ok {
		l.mu.Unlock()
		if existing.SamePayload(rec) {
			l.logger.Debug("contribution replayed", zap.String("contribution_id", rec.ID))
			return existing, nil
		}
		metrics.ContributionsRejected.WithLabelValues("duplicate").Inc()
		return model.Contribution{}, fmt.Errorf("record contribution %s: %w", rec.ID, model.ErrDuplicateContribution)
	}
	if _, ok := l.projects[rec.ProjectID]; !ok {
		metrics.TrackedProjects.Inc()
	}
	l.projects[rec.ProjectID] = append(l.projects[rec.ProjectID], rec)
	l.byID[rec.ID] = rec
	l.mu.Unlock()

	metrics.ContributionsRecorded.WithLabelValues(string(rec.Chain)).Inc()
	metrics.ContributionUSDVolume.WithLabelValues(string(rec.Chain)).Add(rec.USDValue)
	l.logger.Info("contribution recorded",
		zap.String("contribution_id", rec.ID),
		zap.String("project_id", rec.ProjectID),
		zap.String("chain", string(rec.Chain)),
		zap.Float64("amount", rec.Amount),
		zap.Float64("usd_value", rec.USDValue),
		zap.String("price_source", string(snapshot.Sources[rec.Currency])),
	)

	l.notify(EventContribution, rec)
	if l.syncer != nil {
		l.syncer.Persist(rec)
	}
	return rec, nil
}

// ProjectFunding folds the project's current records into an aggregate.
// Unknown projects yield a zero aggregate.
func (l *Ledger) ProjectFunding(projectID string) model.ProjectFunding {
	l.mu.RLock()
	recs := slices.Clone(l.projects[projectID])
	l.mu.RUnlock()

	type acc struct {
		amount decimal.Decimal
		usd    decimal.Decimal
		count  int
	}
	byChain := make(map[model.Chain]*acc)
	total := decimal.Zero
	for _, rec := range recs {
		a, ok := byChain[rec.Chain]
		if !ok {
			a = &acc{}
			byChain[rec.Chain] = a
		}
		usd := decimal.NewFromFloat(rec.USDValue)
		a.amount = a.amount.Add(decimal.NewFromFloat(rec.Amount))
		a.usd = a.usd.Add(usd)
		a.count++
		total = total.Add(usd)
	}

	out := model.ProjectFunding{
		ProjectID:         projectID,
		ByChain:           make(map[model.Chain]model.ChainFunding, len(byChain)),
		ContributionCount: len(recs),
	}
	out.TotalUSD, _ = total.Float64()
	for chain, a := range byChain {
		amount, _ := a.amount.Float64()
		usd, _ := a.usd.Float64()
		out.ByChain[chain] = model.ChainFunding{Amount: amount, USDValue: usd, Count: a.count}
	}
	return out
}

// Contributions returns a copy of the project's records in insertion order.
func (l *Ledger) Contributions(projectID string) []model.Contribution {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.projects[projectID])
}

// UserContributions lazily yields every record whose contributor matches
// address case-insensitively. Each iteration rescans the current state.
func (l *Ledger) UserContributions(address string) iter.Seq[model.Contribution] {
	address = strings.TrimSpace(address)
	return func(yield func(model.Contribution) bool) {
		for _, projectID := range l.Projects() {
			l.mu.RLock()
			recs := slices.Clone(l.projects[projectID])
			l.mu.RUnlock()
			for _, rec := range recs {
				if !strings.EqualFold(rec.Contributor, address) {
					continue
				}
				if !yield(rec) {
					return
				}
			}
		}
	}
}

// Projects lists known project ids in sorted order.
func (l *Ledger) Projects() []string {
	l.mu.RLock()
	ids := make([]string, 0, len(l.projects))
	for id := range l.projects {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Subscribe registers fn for ledger events. The returned func removes it
// and is safe to call more than once.
func (l *Ledger) Subscribe(fn Subscriber) func() {
	l.subMu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription{id: id, fn: fn})
	l.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.subMu.Lock()
			defer l.subMu.Unlock()
			l.subs = slices.DeleteFunc(l.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

func (l *Ledger) notify(event string, rec model.Contribution) {
	l.subMu.RLock()
	subs := slices.Clone(l.subs)
	l.subMu.RUnlock()

	for _, s := range subs {
		l.safeCall(s.fn, event, rec)
	}
}

func (l *Ledger) safeCall(fn Subscriber, event string, rec model.Contribution) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("subscriber panicked",
				zap.String("event", event),
				zap.String("contribution_id", rec.ID),
				zap.Any("panic", r),
			)
		}
	}()
	fn(event, rec)
}

// LoadFromRemote replaces the project's records with what the backend reports.
// A failed fetch leaves the project empty.
func (l *Ledger) LoadFromRemote(ctx context.Context, projectID string) int {
	var recs []model.Contribution
	if l.syncer != nil {
		recs = l.syncer.Fetch(ctx, projectID)
	}
	l.Replace(projectID, recs)
	l.logger.Info("project loaded from remote",
		zap.String("project_id", projectID),
		zap.Int("contributions", len(recs)),
	)
	return len(recs)
}

// MergeFromRemote reloads the project from the backend but keeps local records
// the backend does not report yet, such as ones still queued for persistence.
// Remote records come first, followed by the local-only ones in their order.
func (l *Ledger) MergeFromRemote(ctx context.Context, projectID string) int {
	var remote []model.Contribution
	if l.syncer != nil {
		remote = l.syncer.Fetch(ctx, projectID)
	}

	known := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		known[rec.ID] = struct{}{}
	}
	merged := slices.Clone(remote)

	l.mu.Lock()
	kept := 0
	for _, rec := range l.projects[projectID] {
		if _, ok := known[rec.ID]; ok {
			continue
		}
		merged = append(merged, rec)
		kept++
	}
	l.replaceLocked(projectID, merged)
	l.mu.Unlock()

	l.logger.Info("project merged from remote",
		zap.String("project_id", projectID),
		zap.Int("remote", len(remote)),
		zap.Int("local_only", kept),
	)
	return len(merged)
}

// Replace overwrites a project's records wholesale.
func (l *Ledger) Replace(projectID string, recs []model.Contribution) {
	recs = slices.Clone(recs)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.replaceLocked(projectID, recs)
}

func (l *Ledger) replaceLocked(projectID string, recs []model.Contribution) {
	for _, old := range l.projects[projectID] {
		delete(l.byID, old.ID)
	}
	if _, ok := l.projects[projectID]; !ok {
		metrics.TrackedProjects.Inc()
	}
	if recs == nil {
		recs = []model.Contribution{}
	}
	l.projects[projectID] = recs
	for _, rec := range recs {
		if rec.ID != "" {
			l.byID[rec.ID] = rec
		}
	}
}
