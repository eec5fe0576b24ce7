package orchestrator

import (
	"strings"
)

// dataKey classifies a tool's data by substring of its name.
func dataKey(tool string) string {
	name := strings.ToLower(tool)
	switch {
	case strings.Contains(name, "user"):
		return "users"
	case strings.Contains(name, "realm"):
		return "realms"
	case strings.Contains(name, "client"):
		return "clients"
	case strings.Contains(name, "role"):
		return "roles"
	case strings.Contains(name, "group"):
		return "groups"
	case strings.Contains(name, "metric"), strings.Contains(name, "stat"), strings.Contains(name, "count"):
		return "metrics"
	case strings.Contains(name, "schema"):
		return "schema"
	case strings.Contains(name, "cypher"), strings.Contains(name, "query"):
		return "graph"
	default:
		return "results"
	}
}

type aggregator struct {
	values map[string]interface{}
}

func newAggregator() *aggregator {
	return &aggregator{values: make(map[string]interface{})}
}

// add merges data under the tool's key. Lists are concatenated; a second non-list value
// turns the entry into a list.
func (a *aggregator) add(tool string, data interface{}) {
	if data == nil {
		return
	}
	key := dataKey(tool)

	existing, ok := a.values[key]
	if !ok {
		a.values[key] = data
		return
	}

	merged := asList(existing)
	if list, isList := data.([]interface{}); isList {
		merged = append(merged, list...)
	} else {
		merged = append(merged, data)
	}
	a.values[key] = merged
}

func (a *aggregator) data() map[string]interface{} {
	return a.values
}

func asList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return append([]interface{}(nil), list...)
	}
	return []interface{}{v}
}
