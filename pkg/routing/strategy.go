package routing

import (
	"fmt"
	"strings"
)

// Strategy is the execution plan chosen for a request.
type Strategy string

const (
	FreshIdentityData     Strategy = "fresh_identity_data"
	GraphAnalysisOnly     Strategy = "graph_analysis_only"
	SyncThenAnalyze       Strategy = "sync_then_analyze"
	IdentityWriteThenSync Strategy = "identity_write_then_sync"
	CoordinatedMulti      Strategy = "coordinated_multi"
)

// AllStrategies returns every strategy in rule order.
func AllStrategies() []Strategy {
	return []Strategy{
		IdentityWriteThenSync,
		FreshIdentityData,
		SyncThenAnalyze,
		GraphAnalysisOnly,
		CoordinatedMulti,
	}
}

func (s Strategy) String() string {
	return string(s)
}

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	for _, known := range AllStrategies() {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStrategy accepts the snake_case name in any case.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}
