package datasync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
)

const tracerName = "toolgate.datasync"

// Config configures a Synchronizer.
type Config struct {
	Source    Source
	Store     GraphStore
	Threshold time.Duration
	Logger    zerolog.Logger
}

// Synchronizer copies identity data into the graph and reports its freshness.
type Synchronizer struct {
	source    Source
	store     GraphStore
	threshold time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// New creates a synchronizer.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Source == nil {
		return nil, faults.New(faults.KindConfig, "datasync.New", "source is required")
	}
	if cfg.Store == nil {
		return nil, faults.New(faults.KindConfig, "datasync.New", "graph store is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultFreshnessThreshold
	}

	return &Synchronizer{
		source:    cfg.Source,
		store:     cfg.Store,
		threshold: cfg.Threshold,
		logger:    cfg.Logger.With().Str("component", "datasync").Logger(),
		now:       time.Now,
		locks:     make(map[string]*semaphore.Weighted),
	}, nil
}

// Threshold returns the age after which a scope needs a refresh.
func (s *Synchronizer) Threshold() time.Duration {
	return s.threshold
}

// CheckFreshness reads the sync metadata of scope. A scope without metadata needs a
// refresh and has no age.
func (s *Synchronizer) CheckFreshness(ctx context.Context, scope string) (*SyncFreshness, error) {
	const op = "datasync.CheckFreshness"
	if err := validScope(op, scope); err != nil {
		return nil, err
	}

	meta, err := s.store.Metadata(ctx, scope)
	if err != nil {
		return nil, faults.Wrapf(faults.KindSync, op, err, "failed to read sync metadata for %s", scope)
	}
	return s.freshness(meta), nil
}

func (s *Synchronizer) freshness(meta *SyncMetadata) *SyncFreshness {
	if meta == nil || meta.LastSyncedAt.IsZero() {
		return &SyncFreshness{NeedsRefresh: true}
	}

	last := meta.LastSyncedAt
	age := s.now().Sub(last).Minutes()
	return &SyncFreshness{
		LastSyncedAt: &last,
		AgeMinutes:   &age,
		NeedsRefresh: age > s.threshold.Minutes(),
	}
}

// SyncFromSource replaces the graph copy of scope with the source records. Unless force
// is set, a fresh scope is skipped. Runs of one scope never overlap. Concurrent unforced
// syncs share a single run; a forced sync waits for the run in flight and then runs its
// own, so a write made before the call always reaches the graph.
// On failure the result carries the message and the error is a sync_error.
func (s *Synchronizer) SyncFromSource(ctx context.Context, scope string, force bool) (*SyncResult, error) {
	const op = "datasync.SyncFromSource"
	if err := validScope(op, scope); err != nil {
		return nil, err
	}

	if force {
		return s.exclusive(ctx, scope, true)
	}

	v, err, shared := s.group.Do(scope, func() (interface{}, error) {
		return s.exclusive(ctx, scope, false)
	})
	if shared {
		s.logger.Debug().Str("scope", scope).Msg("Joined in-flight sync")
	}

	res, _ := v.(*SyncResult)
	if res != nil {
		cp := *res
		res = &cp
	}
	return res, err
}

// exclusive runs sync while holding the scope's lock.
func (s *Synchronizer) exclusive(ctx context.Context, scope string, force bool) (*SyncResult, error) {
	lock := s.scopeLock(scope)
	if err := lock.Acquire(ctx, 1); err != nil {
		return nil, faults.Wrapf(faults.KindSync, "datasync.SyncFromSource", err, "sync of %s was not started: %v", scope, err)
	}
	defer lock.Release(1)

	return s.sync(ctx, scope, force)
}

func (s *Synchronizer) scopeLock(scope string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[scope]
	if !ok {
		lock = semaphore.NewWeighted(1)
		s.locks[scope] = lock
	}
	return lock
}

func (s *Synchronizer) sync(ctx context.Context, scope string, force bool) (*SyncResult, error) {
	const op = "datasync.SyncFromSource"
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, tracerName, "datasync.sync",
		attribute.String("scope", scope),
		attribute.Bool("force", force),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("scope", scope).Logger()

	if !force {
		fresh, err := s.CheckFreshness(ctx, scope)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Freshness check failed, syncing anyway")
		case !fresh.NeedsRefresh:
			reason := fmt.Sprintf("data is fresh (%.1f minutes old, threshold %s)", *fresh.AgeMinutes, s.threshold)
			logger.Debug().Str("reason", reason).Msg("Sync skipped")
			observability.RecordSyncRun(scope, "skipped", 0)
			return &SyncResult{
				Scope:    scope,
				Success:  true,
				Skipped:  true,
				Reason:   reason,
				Duration: time.Since(start),
			}, nil
		}
	}

	fail := func(err error, msg string) (*SyncResult, error) {
		wrapped := faults.Wrapf(faults.KindSync, op, err, "%s: %v", msg, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		logger.Error().Err(err).Msg("Sync failed")
		observability.RecordSyncRun(scope, "error", 0)
		observability.RecordSyncAudit(ctx, scope, "error", map[string]interface{}{"error": wrapped.Error()})
		return &SyncResult{
			Scope:    scope,
			Success:  false,
			Duration: time.Since(start),
			Error:    wrapped.Error(),
		}, wrapped
	}

	records, err := s.source.FetchAll(ctx, scope)
	if err != nil {
		return fail(err, "failed to fetch source records")
	}
	if err := s.store.ReplaceAll(ctx, scope, records); err != nil {
		return fail(err, "failed to replace graph records")
	}

	meta := SyncMetadata{
		Scope:        scope,
		LastSyncedAt: s.now().UTC(),
		RecordCount:  len(records),
		Source:       s.source.Name(),
	}
	if err := s.store.WriteMetadata(ctx, meta); err != nil {
		return fail(err, "failed to write sync metadata")
	}

	res := &SyncResult{
		Scope:         scope,
		Success:       true,
		RecordsSynced: len(records),
		Duration:      time.Since(start),
	}
	observability.RecordSyncRun(scope, "success", len(records))
	observability.RecordSyncAudit(ctx, scope, "success", map[string]interface{}{
		"records":     len(records),
		"forced":      force,
		"duration_ms": res.Duration.Milliseconds(),
	})
	logger.Info().Int("records", len(records)).Dur("duration", res.Duration).Msg("Sync completed")
	return res, nil
}

// ValidateIntegrity compares the record counts of the source and the graph. Count
// failures are reported as issues.
func (s *Synchronizer) ValidateIntegrity(ctx context.Context, scope string) (*IntegrityReport, error) {
	const op = "datasync.ValidateIntegrity"
	if err := validScope(op, scope); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "datasync.validate_integrity", attribute.String("scope", scope))
	defer span.End()

	report := &IntegrityReport{Scope: scope}
	var countErrs []error

	sourceCount, err := s.source.Count(ctx, scope)
	if err != nil {
		countErrs = append(countErrs, err)
		report.Issues = append(report.Issues, fmt.Sprintf("source count failed: %v", err))
	}
	targetCount, err := s.store.Count(ctx, scope)
	if err != nil {
		countErrs = append(countErrs, err)
		report.Issues = append(report.Issues, fmt.Sprintf("graph count failed: %v", err))
	}
	report.SourceCount = sourceCount
	report.TargetCount = targetCount

	if len(countErrs) == 0 {
		report.Discrepancy = sourceCount - targetCount
		if report.Discrepancy < 0 {
			report.Discrepancy = -report.Discrepancy
		}
		if report.Discrepancy > 0 {
			report.Issues = append(report.Issues,
				fmt.Sprintf("record count mismatch: source has %d, graph has %d", sourceCount, targetCount))
		}
	}

	meta, err := s.store.Metadata(ctx, scope)
	switch {
	case err != nil:
		report.Issues = append(report.Issues, fmt.Sprintf("sync metadata unreadable: %v", err))
	case meta == nil:
		report.Issues = append(report.Issues, "no sync metadata for scope")
	case len(countErrs) == 0 && meta.RecordCount != targetCount:
		report.Issues = append(report.Issues,
			fmt.Sprintf("sync metadata reports %d records, graph has %d", meta.RecordCount, targetCount))
	}

	report.IsValid = len(report.Issues) == 0
	if err := errors.Join(countErrs...); err != nil {
		span.RecordError(err)
	}
	s.logger.Debug().
		Str("scope", scope).
		Bool("valid", report.IsValid).
		Int("source", sourceCount).
		Int("target", targetCount).
		Msg("Integrity validated")
	return report, nil
}

// Status returns the freshness and metadata of scope.
func (s *Synchronizer) Status(ctx context.Context, scope string) (*Status, error) {
	const op = "datasync.Status"
	if err := validScope(op, scope); err != nil {
		return nil, err
	}

	meta, err := s.store.Metadata(ctx, scope)
	if err != nil {
		return nil, faults.Wrapf(faults.KindSync, op, err, "failed to read sync metadata for %s", scope)
	}
	return &Status{
		Scope:     scope,
		Freshness: s.freshness(meta),
		Metadata:  meta,
		Threshold: s.threshold,
	}, nil
}

func validScope(op, scope string) error {
	if strings.TrimSpace(scope) == "" {
		return faults.New(faults.KindValidation, op, "scope is required")
	}
	return nil
}
