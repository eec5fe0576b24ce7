package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataKey(t *testing.T) {
	tests := map[string]string{
		"list-users":           "users",
		"count-users":          "users",
		"list-realms":          "realms",
		"get-clients":          "clients",
		"list-roles":           "roles",
		"list-groups":          "groups",
		"get-metrics":          "metrics",
		"realm-stats":          "realms",
		"get_neo4j_schema":     "schema",
		"read_neo4j_cypher":    "graph",
		"send-email":           "results",
		"user-count":           "users",
		"get-event-statistics": "metrics",
		"run-query":            "graph",
	}

	for tool, want := range tests {
		t.Run("should classify "+tool, func(t *testing.T) {
			assert.Equal(t, want, dataKey(tool))
		})
	}
}

func TestAggregator(t *testing.T) {
	t.Run("should keep a single value as is", func(t *testing.T) {
		a := newAggregator()
		a.add("get_neo4j_schema", map[string]interface{}{"labels": []interface{}{"User"}})

		assert.Equal(t, map[string]interface{}{"labels": []interface{}{"User"}}, a.data()["schema"])
	})

	t.Run("should concatenate lists under one key", func(t *testing.T) {
		a := newAggregator()
		a.add("list-users", []interface{}{"a"})
		a.add("search-users", []interface{}{"b", "c"})

		assert.Equal(t, []interface{}{"a", "b", "c"}, a.data()["users"])
	})

	t.Run("should turn repeated values into a list", func(t *testing.T) {
		a := newAggregator()
		a.add("get-user", map[string]interface{}{"id": "1"})
		a.add("get-user", map[string]interface{}{"id": "2"})

		assert.Equal(t, []interface{}{
			map[string]interface{}{"id": "1"},
			map[string]interface{}{"id": "2"},
		}, a.data()["users"])
	})

	t.Run("should skip nil data", func(t *testing.T) {
		a := newAggregator()
		a.add("list-users", nil)

		assert.Empty(t, a.data())
	})
}
