package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/pkg/datasync"
)

type mockFreshness struct {
	mock.Mock
}

func (m *mockFreshness) CheckFreshness(ctx context.Context, scope string) (*datasync.SyncFreshness, error) {
	ret := m.Called(ctx, scope)
	fresh, _ := ret.Get(0).(*datasync.SyncFreshness)
	return fresh, ret.Error(1)
}

func freshness(needsRefresh bool, age float64) *datasync.SyncFreshness {
	return &datasync.SyncFreshness{AgeMinutes: &age, NeedsRefresh: needsRefresh}
}

func newTestRouter(checker FreshnessChecker) *Router {
	return NewRouter(Config{Freshness: checker, DefaultScope: "master", Logger: zerolog.Nop()})
}

func TestRouter_Determine(t *testing.T) {
	ctx := context.Background()

	t.Run("should let write intent win", func(t *testing.T) {
		checker := &mockFreshness{}
		r := newTestRouter(checker)

		for _, text := range []string{
			"Create a user bob",
			"Erstelle einen Benutzer und analysiere die aktuellen Daten",
			"delete the latest duplicate users",
			"Bitte lösche den Benutzer",
			"UPDATE realm settings",
		} {
			d, err := r.Determine(ctx, text)
			require.NoError(t, err)
			assert.Equal(t, IdentityWriteThenSync, d.Strategy, text)
			assert.Equal(t, RuleWrite, d.Rule, text)
		}
		checker.AssertNotCalled(t, "CheckFreshness", mock.Anything, mock.Anything)
	})

	t.Run("should prefer fresh data over analysis", func(t *testing.T) {
		checker := &mockFreshness{}
		r := newTestRouter(checker)

		d, err := r.Determine(ctx, "Show the current users and analyze them")
		require.NoError(t, err)
		assert.Equal(t, FreshIdentityData, d.Strategy)
		assert.Equal(t, "current", d.Keyword)
		checker.AssertNotCalled(t, "CheckFreshness", mock.Anything, mock.Anything)
	})

	t.Run("should analyze the graph directly when fresh", func(t *testing.T) {
		checker := &mockFreshness{}
		checker.On("CheckFreshness", mock.Anything, "master").Return(freshness(false, 10), nil).Once()

		d, err := newTestRouter(checker).Determine(ctx, "Analysiere die Benutzerdaten")
		require.NoError(t, err)
		assert.Equal(t, GraphAnalysisOnly, d.Strategy)
		assert.Equal(t, RuleAnalysis, d.Rule)
		require.NotNil(t, d.Freshness)
		assert.Equal(t, 10.0, *d.Freshness.AgeMinutes)
		checker.AssertExpectations(t)
	})

	t.Run("should sync first when stale", func(t *testing.T) {
		checker := &mockFreshness{}
		checker.On("CheckFreshness", mock.Anything, "master").Return(freshness(true, 45), nil).Once()

		d, err := newTestRouter(checker).Determine(ctx, "Analysiere die Benutzerdaten")
		require.NoError(t, err)
		assert.Equal(t, SyncThenAnalyze, d.Strategy)
	})

	t.Run("should treat a failed freshness check as stale", func(t *testing.T) {
		checker := &mockFreshness{}
		checker.On("CheckFreshness", mock.Anything, "master").Return(nil, errors.New("graph down"))

		d, err := newTestRouter(checker).Determine(ctx, "find duplicate accounts")
		require.NoError(t, err)
		assert.Equal(t, SyncThenAnalyze, d.Strategy)
		assert.Equal(t, "graph down", d.FreshnessError)
		assert.Nil(t, d.Freshness)
	})

	t.Run("should use the scope from the context", func(t *testing.T) {
		checker := &mockFreshness{}
		checker.On("CheckFreshness", mock.Anything, "acme").Return(freshness(false, 1), nil).Once()

		d, err := newTestRouter(checker).Determine(WithScope(ctx, "acme"), "show statistics")
		require.NoError(t, err)
		assert.Equal(t, GraphAnalysisOnly, d.Strategy)
		assert.Equal(t, "acme", d.Scope)
		checker.AssertExpectations(t)
	})

	t.Run("should fall back to coordinated multi", func(t *testing.T) {
		checker := &mockFreshness{}
		d, err := newTestRouter(checker).Determine(ctx, "list all users in master realm")
		require.NoError(t, err)
		assert.Equal(t, CoordinatedMulti, d.Strategy)
		assert.Equal(t, RuleDefault, d.Rule)
	})

	t.Run("should fail on a canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newTestRouter(nil).Determine(canceled, "hello")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type constantRule struct {
	strategy Strategy
}

func (c constantRule) Name() string { return "constant" }

func (c constantRule) Apply(context.Context, Input) (Decision, bool) {
	return Decision{Strategy: c.strategy, Rule: "constant"}, true
}

func TestRouter_SetPolicy(t *testing.T) {
	r := newTestRouter(nil)

	r.SetPolicy(Rules{constantRule{strategy: GraphAnalysisOnly}})
	d, err := r.Determine(context.Background(), "create everything")
	require.NoError(t, err)
	assert.Equal(t, GraphAnalysisOnly, d.Strategy)
	assert.Equal(t, "constant", d.Rule)

	r.SetPolicy(nil)
	assert.Len(t, r.Policy().Rules(), 1)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range AllStrategies() {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStrategy(" Sync_Then_Analyze ")
	require.NoError(t, err)
	assert.Equal(t, SyncThenAnalyze, got)

	_, err = ParseStrategy("yolo")
	assert.Error(t, err)
}
