package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
)

// TopicSnapshot is one archived successful fetch
type TopicSnapshot struct {
	ID        int64         `db:"id"`
	Network   topic.Network `db:"network"`
	RequestID int64         `db:"request_id"`
	FetchedAt time.Time     `db:"fetched_at"`
	Payload   []byte        `db:"payload"`
}

// Topics decodes the archived feed
func (s TopicSnapshot) Topics() (topic.Topics, error) {
	var topics topic.Topics
	if err := json.Unmarshal(s.Payload, &topics); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %d", s.ID)
	}
	return topics, nil
}

// TopicSnapshotRepository archives topic feeds in PostgreSQL
type TopicSnapshotRepository struct {
	db DBTX
}

// NewTopicSnapshotRepository creates a new topic snapshot repository
func NewTopicSnapshotRepository(db DBTX) *TopicSnapshotRepository {
	return &TopicSnapshotRepository{db: db}
}

// SaveSnapshot stores one successful fetch
func (r *TopicSnapshotRepository) SaveSnapshot(ctx context.Context, network topic.Network, requestID uint64, topics topic.Topics, fetchedAt time.Time) error {
	payload, err := json.Marshal(topics)
	if err != nil {
		return errors.Wrap(err, "failed to marshal topics")
	}

	query := `
		INSERT INTO topic_snapshots (network, request_id, fetched_at, payload)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, network, int64(requestID), fetchedAt, payload); err != nil {
		return errors.Wrapf(err, "failed to save topic snapshot: network=%s", network)
	}

	return nil
}

// Latest returns the most recent snapshot for a network
func (r *TopicSnapshotRepository) Latest(ctx context.Context, network topic.Network) (*TopicSnapshot, error) {
	query := `
		SELECT id, network, request_id, fetched_at, payload
		FROM topic_snapshots
		WHERE network = $1
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`

	var snap TopicSnapshot
	err := r.db.GetContext(ctx, &snap, query, network)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "no topic snapshot for %s", network)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get latest topic snapshot: network=%s", network)
	}

	return &snap, nil
}

// History lists snapshots for a network, newest first, without payloads.
// A positive beforeID restricts the listing to older rows.
func (r *TopicSnapshotRepository) History(ctx context.Context, network topic.Network, beforeID int64, limit int) ([]TopicSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, network, request_id, fetched_at, ''::bytea AS payload
		FROM topic_snapshots
		WHERE network = $1 AND ($2::bigint = 0 OR id < $2::bigint)
		ORDER BY id DESC
		LIMIT $3
	`

	var snaps []TopicSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, network, beforeID, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to list topic snapshots: network=%s", network)
	}

	return snaps, nil
}

// Prune deletes snapshots older than cutoff and reports how many were removed
func (r *TopicSnapshotRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM topic_snapshots WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune topic snapshots")
	}
	return res.RowsAffected()
}
