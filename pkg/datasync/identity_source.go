package datasync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/pkg/backend"
)

// IdentitySource reads users of a realm from the Identity Backend.
type IdentitySource struct {
	client backend.Client
	logger zerolog.Logger
}

// NewIdentitySource creates a source over an identity backend client.
func NewIdentitySource(client backend.Client, logger zerolog.Logger) *IdentitySource {
	return &IdentitySource{
		client: client,
		logger: logger.With().Str("component", "identity_source").Logger(),
	}
}

func (s *IdentitySource) Name() string {
	return s.client.Name()
}

// FetchAll lists every user of the realm. The backend may return the list directly or
// wrapped as {"users": [...]}.
func (s *IdentitySource) FetchAll(ctx context.Context, scope string) ([]Record, error) {
	resp, err := s.client.CallTool(ctx, backend.ToolListUsers, map[string]interface{}{"realm": scope})
	if err != nil {
		return nil, err
	}
	return decodeRecords(resp.Data)
}

// Count asks the backend for the user count and falls back to counting list-users when
// count-users is not supported.
func (s *IdentitySource) Count(ctx context.Context, scope string) (int, error) {
	resp, err := s.client.CallTool(ctx, backend.ToolCountUsers, map[string]interface{}{"realm": scope})
	if err == nil {
		if n, ok := decodeCount(resp.Data); ok {
			return n, nil
		}
		s.logger.Debug().Str("scope", scope).Msg("Unrecognized count-users result, counting list-users")
	} else {
		s.logger.Debug().Err(err).Str("scope", scope).Msg("count-users failed, counting list-users")
	}

	records, err := s.FetchAll(ctx, scope)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func decodeRecords(data json.RawMessage) ([]Record, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Users []Record `json:"users"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected list-users result: %w", err)
	}
	return wrapped.Users, nil
}

func decodeCount(data json.RawMessage) (int, bool) {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return int(n), true
	}

	var wrapped struct {
		Count *float64 `json:"count"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Count != nil {
		return int(*wrapped.Count), true
	}
	return 0, false
}
