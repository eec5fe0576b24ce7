package toolregistry

import (
	"strings"

	"github.com/harun/toolgate/pkg/backend"
)

// Intent filters the catalog for a request.
type Intent string

const (
	IntentRead    Intent = "read"
	IntentWrite   Intent = "write"
	IntentAnalyze Intent = "analyze"
	IntentAll     Intent = "all"
)

// AllIntents returns all valid intents
func AllIntents() []Intent {
	return []Intent{IntentRead, IntentWrite, IntentAnalyze, IntentAll}
}

// IsValidIntent checks if an intent is valid
func IsValidIntent(intent string) bool {
	in := Intent(strings.ToLower(intent))
	for _, valid := range AllIntents() {
		if in == valid {
			return true
		}
	}
	return false
}

var writeMarkers = []string{"create", "delete", "update"}

// IsWriteTool reports whether a tool name denotes an identity write operation.
func IsWriteTool(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range writeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// QualifiedName prefixes a backend tool name with its backend.
func QualifiedName(backendName, tool string) string {
	return backendName + "_" + tool
}

// SplitName resolves a qualified tool name into backend and tool by its prefix.
func SplitName(name string) (backendName, tool string, ok bool) {
	for _, b := range []string{backend.Identity, backend.Graph} {
		prefix := b + "_"
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return b, name[len(prefix):], true
		}
	}
	return "", name, false
}

var (
	graphHints    = []string{"neo4j", "cypher", "graph", "schema", "query"}
	identityHints = []string{"user", "realm", "client", "role", "group", "keycloak", "identity"}
)

// GuessBackend resolves an unprefixed tool name by keyword.
func GuessBackend(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, hint := range graphHints {
		if strings.Contains(lower, hint) {
			return backend.Graph, true
		}
	}
	for _, hint := range identityHints {
		if strings.Contains(lower, hint) {
			return backend.Identity, true
		}
	}
	return "", false
}
