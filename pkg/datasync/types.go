package datasync

import (
	"context"
	"time"
)

const (
	DefaultFreshnessThreshold = 30 * time.Minute
	DefaultBatchSize          = 500
)

// Record is one source entity, as returned by the source backend.
type Record map[string]interface{}

// SyncFreshness describes how old the graph copy of a scope is. LastSyncedAt and
// AgeMinutes are nil when the scope was never synced.
type SyncFreshness struct {
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	AgeMinutes   *float64   `json:"ageMinutes,omitempty"`
	NeedsRefresh bool       `json:"needsRefresh"`
}

// SyncMetadata is the bookkeeping node written after every successful sync.
type SyncMetadata struct {
	Scope        string    `json:"scope"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	RecordCount  int       `json:"recordCount"`
	Source       string    `json:"source"`
}

// SyncResult is the outcome of SyncFromSource.
type SyncResult struct {
	Scope         string        `json:"scope"`
	Success       bool          `json:"success"`
	Skipped       bool          `json:"skipped,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	RecordsSynced int           `json:"recordsSynced"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// IntegrityReport compares the source and graph record counts of a scope.
type IntegrityReport struct {
	Scope       string   `json:"scope"`
	IsValid     bool     `json:"isValid"`
	SourceCount int      `json:"sourceCount"`
	TargetCount int      `json:"targetCount"`
	Discrepancy int      `json:"discrepancy"`
	Issues      []string `json:"issues,omitempty"`
}

// Status is the freshness and metadata of a scope.
type Status struct {
	Scope     string         `json:"scope"`
	Freshness *SyncFreshness `json:"freshness"`
	Metadata  *SyncMetadata  `json:"metadata,omitempty"`
	Threshold time.Duration  `json:"threshold"`
}

// Source yields the authoritative records of a scope.
type Source interface {
	Name() string
	FetchAll(ctx context.Context, scope string) ([]Record, error)
	Count(ctx context.Context, scope string) (int, error)
}

// GraphStore holds the synced copy. Metadata returns nil without error when the scope
// has never been synced.
type GraphStore interface {
	Metadata(ctx context.Context, scope string) (*SyncMetadata, error)
	WriteMetadata(ctx context.Context, meta SyncMetadata) error
	ReplaceAll(ctx context.Context, scope string, records []Record) error
	Count(ctx context.Context, scope string) (int, error)
}
