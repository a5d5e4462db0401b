package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codetrek/syntrix-client/internal/storage/types"
	"github.com/codetrek/syntrix-client/pkg/model"
)

type queryCache struct {
	p *Persistence
}

type queryEnvelope struct {
	Path    string        `json:"path"`
	Filters model.Filters `json:"filters,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

func encodeQuery(q model.Query) ([]byte, error) {
	return json.Marshal(queryEnvelope{Path: q.Path.String(), Filters: q.Filters, Limit: q.Limit})
}

func decodeQuery(data []byte) (model.Query, error) {
	var env queryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Query{}, fmt.Errorf("%w: bad query encoding: %v", model.ErrCorruption, err)
	}
	path, err := model.ParseResourcePath(env.Path)
	if err != nil {
		return model.Query{}, fmt.Errorf("%w: bad query path %q", model.ErrCorruption, env.Path)
	}
	return model.Query{Path: path, Filters: env.Filters, Limit: env.Limit}, nil
}

func (c *queryCache) AllocateTargetID() (int, error) {
	row := c.p.querier().QueryRow(`SELECT highest_target_id FROM target_globals WHERE id = 0`)
	var highest int
	if err := row.Scan(&highest); err != nil {
		return 0, fmt.Errorf("failed to read target globals: %w", err)
	}
	highest += 2
	if _, err := c.p.querier().Exec(
		`UPDATE target_globals SET highest_target_id = ? WHERE id = 0`, highest); err != nil {
		return 0, fmt.Errorf("failed to update target globals: %w", err)
	}
	return highest, nil
}

func (c *queryCache) write(data *types.QueryData) error {
	encoded, err := encodeQuery(data.Query)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	if _, err := c.p.querier().Exec(
		`INSERT OR REPLACE INTO targets (canonical_id, target_id, query, purpose, sequence_number, version_micros, resume_token)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		data.Query.CanonicalID(), data.TargetID, encoded, int(data.Purpose),
		data.SequenceNumber, data.SnapshotVersion.Micros(), data.ResumeToken); err != nil {
		return fmt.Errorf("failed to write target: %w", err)
	}
	return nil
}

func (c *queryCache) AddQueryData(data *types.QueryData) error {
	if err := c.write(data); err != nil {
		return err
	}
	// Keep the allocator ahead of externally assigned IDs.
	if _, err := c.p.querier().Exec(
		`UPDATE target_globals SET highest_target_id = ? WHERE id = 0 AND highest_target_id < ?`,
		data.TargetID, data.TargetID); err != nil {
		return fmt.Errorf("failed to update target globals: %w", err)
	}
	return nil
}

func (c *queryCache) UpdateQueryData(data *types.QueryData) error {
	return c.write(data)
}

func (c *queryCache) RemoveQueryData(data *types.QueryData) error {
	if _, err := c.p.querier().Exec(
		`DELETE FROM targets WHERE canonical_id = ?`, data.Query.CanonicalID()); err != nil {
		return fmt.Errorf("failed to remove target: %w", err)
	}
	return nil
}

func (c *queryCache) GetQueryData(query model.Query) (*types.QueryData, error) {
	row := c.p.querier().QueryRow(
		`SELECT target_id, query, purpose, sequence_number, version_micros, resume_token FROM targets WHERE canonical_id = ?`,
		query.CanonicalID())
	var targetID, purpose int
	var encoded, resumeToken []byte
	var sequenceNumber, micros int64
	if err := row.Scan(&targetID, &encoded, &purpose, &sequenceNumber, &micros, &resumeToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read target: %w", err)
	}
	decoded, err := decodeQuery(encoded)
	if err != nil {
		return nil, err
	}
	return &types.QueryData{
		Query:           decoded,
		TargetID:        targetID,
		Purpose:         types.QueryPurpose(purpose),
		SequenceNumber:  sequenceNumber,
		SnapshotVersion: model.VersionFromMicros(micros),
		ResumeToken:     resumeToken,
	}, nil
}

func (c *queryCache) TargetCount() (int, error) {
	row := c.p.querier().QueryRow(`SELECT COUNT(*) FROM targets`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count targets: %w", err)
	}
	return count, nil
}

func (c *queryCache) AddMatchingKeys(keys []model.DocumentKey, targetID int) error {
	for _, key := range keys {
		if _, err := c.p.querier().Exec(
			`INSERT OR IGNORE INTO target_documents (target_id, path) VALUES (?, ?)`,
			targetID, key.String()); err != nil {
			return fmt.Errorf("failed to add matching key: %w", err)
		}
	}
	return nil
}

func (c *queryCache) RemoveMatchingKeys(keys []model.DocumentKey, targetID int) error {
	for _, key := range keys {
		if _, err := c.p.querier().Exec(
			`DELETE FROM target_documents WHERE target_id = ? AND path = ?`,
			targetID, key.String()); err != nil {
			return fmt.Errorf("failed to remove matching key: %w", err)
		}
	}
	return nil
}

func (c *queryCache) RemoveMatchingKeysForTarget(targetID int) error {
	if _, err := c.p.querier().Exec(
		`DELETE FROM target_documents WHERE target_id = ?`, targetID); err != nil {
		return fmt.Errorf("failed to remove matching keys: %w", err)
	}
	return nil
}

func (c *queryCache) MatchingKeysForTarget(targetID int) (model.KeySet, error) {
	rows, err := c.p.querier().Query(
		`SELECT path FROM target_documents WHERE target_id = ?`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching keys: %w", err)
	}
	defer rows.Close()
	out := model.NewKeySet()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan matching key: %w", err)
		}
		key, err := model.ParseDocumentKey(path)
		if err != nil {
			return nil, fmt.Errorf("%w: bad matching key %q", model.ErrCorruption, path)
		}
		out.Add(key)
	}
	return out, rows.Err()
}

func (c *queryCache) ContainsKey(key model.DocumentKey) (bool, error) {
	row := c.p.querier().QueryRow(
		`SELECT COUNT(*) FROM target_documents WHERE path = ?`, key.String())
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to probe matching keys: %w", err)
	}
	return count > 0, nil
}

func (c *queryCache) LastRemoteSnapshotVersion() (model.SnapshotVersion, error) {
	row := c.p.querier().QueryRow(`SELECT last_remote_version_micros FROM target_globals WHERE id = 0`)
	var micros int64
	if err := row.Scan(&micros); err != nil {
		return model.SnapshotVersionMin, fmt.Errorf("failed to read last remote version: %w", err)
	}
	return model.VersionFromMicros(micros), nil
}

func (c *queryCache) SetLastRemoteSnapshotVersion(version model.SnapshotVersion) error {
	if _, err := c.p.querier().Exec(
		`UPDATE target_globals SET last_remote_version_micros = ? WHERE id = 0`, version.Micros()); err != nil {
		return fmt.Errorf("failed to write last remote version: %w", err)
	}
	return nil
}
