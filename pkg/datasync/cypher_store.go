package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolgate/pkg/backend"
)

// Queries run through read_neo4j_cypher must not contain any write keyword, not even
// inside an identifier: the graph backend rejects them by substring.
const (
	queryMetadata = `MATCH (m:SyncMetadata {scope: $scope})
RETURN m.lastSyncedAt AS lastSyncedAt, m.recordCount AS recordCount, m.source AS source
LIMIT 1`

	queryCount = `MATCH (u:User {realm: $scope}) RETURN count(u) AS total`

	// queryReplace drops the scope's metadata and users and writes the first batch in one
	// transaction. Freshness reports a refresh until the sync writes new metadata.
	queryReplace = `OPTIONAL MATCH (m:SyncMetadata {scope: $scope})
DETACH DELETE m
WITH count(*) AS cleared
OPTIONAL MATCH (old:User {realm: $scope})
DETACH DELETE old
WITH count(*) AS removed
UNWIND $users AS u
MERGE (n:User {id: u.id, realm: $scope})
SET n += u.props, n.syncedAt = $syncedAt`

	queryUpsert = `UNWIND $users AS u
MERGE (n:User {id: u.id, realm: $scope})
SET n += u.props, n.syncedAt = $syncedAt`

	queryWriteMetadata = `MERGE (m:SyncMetadata {scope: $scope})
SET m.lastSyncedAt = $lastSyncedAt, m.recordCount = $recordCount, m.source = $source`
)

// CypherStore implements GraphStore with Cypher queries sent to the Graph Backend.
type CypherStore struct {
	client    backend.Client
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCypherStore creates a store over a graph backend client.
func NewCypherStore(client backend.Client, batchSize int, logger zerolog.Logger) *CypherStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CypherStore{
		client:    client,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "cypher_store").Logger(),
		now:       time.Now,
	}
}

type metadataRow struct {
	LastSyncedAt *string  `json:"lastSyncedAt"`
	RecordCount  *float64 `json:"recordCount"`
	Source       *string  `json:"source"`
}

func (s *CypherStore) Metadata(ctx context.Context, scope string) (*SyncMetadata, error) {
	var rows []metadataRow
	if err := s.read(ctx, queryMetadata, map[string]interface{}{"scope": scope}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].LastSyncedAt == nil {
		return nil, nil
	}

	row := rows[0]
	syncedAt, err := time.Parse(time.RFC3339Nano, *row.LastSyncedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid lastSyncedAt %q: %w", *row.LastSyncedAt, err)
	}

	meta := &SyncMetadata{Scope: scope, LastSyncedAt: syncedAt}
	if row.RecordCount != nil {
		meta.RecordCount = int(*row.RecordCount)
	}
	if row.Source != nil {
		meta.Source = *row.Source
	}
	return meta, nil
}

func (s *CypherStore) WriteMetadata(ctx context.Context, meta SyncMetadata) error {
	return s.write(ctx, queryWriteMetadata, map[string]interface{}{
		"scope":        meta.Scope,
		"lastSyncedAt": meta.LastSyncedAt.UTC().Format(time.RFC3339Nano),
		"recordCount":  meta.RecordCount,
		"source":       meta.Source,
	})
}

// ReplaceAll replaces the scope's users with records. The first batch is written in the
// same transaction as the clear, so a scope that fits one batch is replaced atomically.
// Larger scopes lose their sync metadata with the clear: a later batch failure leaves
// the scope marked as needing a refresh. Nodes are merged on id, so a retried batch
// does not duplicate users.
func (s *CypherStore) ReplaceAll(ctx context.Context, scope string, records []Record) error {
	syncedAt := s.now().UTC().Format(time.RFC3339Nano)

	for start := 0; start == 0 || start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := make([]map[string]interface{}, 0, end-start)
		for i, r := range records[start:end] {
			batch = append(batch, map[string]interface{}{
				"id":    nodeID(scope, start+i, r),
				"props": properties(r),
			})
		}

		query := queryUpsert
		if start == 0 {
			query = queryReplace
		}
		err := s.write(ctx, query, map[string]interface{}{
			"scope":    scope,
			"syncedAt": syncedAt,
			"users":    batch,
		})
		if err != nil {
			if start == 0 {
				return fmt.Errorf("failed to replace scope %s: %w", scope, err)
			}
			return fmt.Errorf("failed to upsert records %d-%d: %w", start, end, err)
		}
		s.logger.Debug().Str("scope", scope).Int("from", start).Int("to", end).Msg("Wrote batch")
	}
	return nil
}

func (s *CypherStore) Count(ctx context.Context, scope string) (int, error) {
	var rows []struct {
		Total float64 `json:"total"`
	}
	if err := s.read(ctx, queryCount, map[string]interface{}{"scope": scope}, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Total), nil
}

func (s *CypherStore) read(ctx context.Context, query string, params map[string]interface{}, out interface{}) error {
	resp, err := s.client.CallTool(ctx, backend.ToolGraphRead, map[string]interface{}{
		"query":  query,
		"params": params,
	})
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode query result: %w", err)
	}
	return nil
}

func (s *CypherStore) write(ctx context.Context, query string, params map[string]interface{}) error {
	_, err := s.client.CallTool(ctx, backend.ToolGraphWrite, map[string]interface{}{
		"query":  query,
		"params": params,
	})
	return err
}

// nodeID is the merge key of a record: its id, else its username, else its position.
func nodeID(scope string, index int, r Record) string {
	for _, key := range []string{"id", "username"} {
		if v, ok := r[key]; ok && v != nil {
			if id := fmt.Sprint(v); id != "" {
				return id
			}
		}
	}
	return fmt.Sprintf("%s#%d", scope, index)
}

// properties keeps the scalar fields of r; graph node properties cannot hold maps.
func properties(r Record) map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		switch v.(type) {
		case string, bool, float64, float32, int, int64, json.Number:
			out[k] = v
		}
	}
	return out
}
