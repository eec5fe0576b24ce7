package routing

import (
	"context"
	"strings"

	"github.com/harun/toolgate/pkg/datasync"
)

const (
	RuleWrite    = "write"
	RuleFresh    = "fresh"
	RuleAnalysis = "analysis"
	RuleDefault  = "default"
)

// FreshnessChecker reports how old the graph copy of a scope is.
type FreshnessChecker interface {
	CheckFreshness(ctx context.Context, scope string) (*datasync.SyncFreshness, error)
}

// Input is what a rule evaluates.
type Input struct {
	// Text is the request lower-cased.
	Text      string
	Scope     string
	Freshness FreshnessChecker
}

// Rule maps an input to a strategy when it applies.
type Rule interface {
	Name() string
	Apply(ctx context.Context, in Input) (Decision, bool)
}

// Policy is an ordered rule list; the first applying rule wins.
type Policy interface {
	Rules() []Rule
}

// Rules is a Policy over a fixed slice.
type Rules []Rule

func (r Rules) Rules() []Rule { return r }

// NewKeywordPolicy builds the write, fresh and analysis rules from set.
func NewKeywordPolicy(set KeywordSet) Policy {
	set = set.normalized()
	return Rules{
		KeywordRule{RuleName: RuleWrite, Keywords: set.Write, Strategy: IdentityWriteThenSync},
		KeywordRule{RuleName: RuleFresh, Keywords: set.Fresh, Strategy: FreshIdentityData},
		AnalysisRule{Keywords: set.Analysis},
	}
}

// KeywordRule applies when the text contains any keyword.
type KeywordRule struct {
	RuleName string
	Keywords []string
	Strategy Strategy
}

func (r KeywordRule) Name() string { return r.RuleName }

func (r KeywordRule) Apply(_ context.Context, in Input) (Decision, bool) {
	kw, ok := matchKeyword(in.Text, r.Keywords)
	if !ok {
		return Decision{}, false
	}
	return Decision{Strategy: r.Strategy, Rule: r.RuleName, Keyword: kw}, true
}

// AnalysisRule applies on an analysis keyword and picks between analyzing the graph
// copy directly and syncing it first. A failed freshness check counts as stale.
type AnalysisRule struct {
	Keywords []string
}

func (r AnalysisRule) Name() string { return RuleAnalysis }

func (r AnalysisRule) Apply(ctx context.Context, in Input) (Decision, bool) {
	kw, ok := matchKeyword(in.Text, r.Keywords)
	if !ok {
		return Decision{}, false
	}

	d := Decision{Strategy: SyncThenAnalyze, Rule: RuleAnalysis, Keyword: kw}
	if in.Freshness == nil {
		return d, true
	}

	fresh, err := in.Freshness.CheckFreshness(ctx, in.Scope)
	if err != nil {
		d.FreshnessError = err.Error()
		return d, true
	}
	d.Freshness = fresh
	if !fresh.NeedsRefresh {
		d.Strategy = GraphAnalysisOnly
	}
	return d, true
}

func lower(text string) string {
	return strings.ToLower(text)
}
