package queue

import (
	"database/sql"
	"strings"
	"time"

	"github.com/teliris/jobscout/db"
	"github.com/teliris/jobscout/errors"
)

// Store handles persistence of queue items.
//
// The conditional claim in ClaimNext is the only operation that races
// between workers; every other mutation happens under the claiming
// worker's ownership and is protected by the optimistic version check.
type Store struct {
	db *sql.DB
}

// NewStore creates a new item store
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// Insert creates a new item in the database.
//
// Returns ErrValidation if lineage fields are missing or inconsistent
// (a bug in the caller's spawn construction), and ErrDuplicatePending if
// an in-flight uniqueness index rejects the row: either the same
// (tracking_id, source_key) is already in flight, or the item is a root
// and another root for the same source key is.
func (s *Store) Insert(item *Item) error {
	if item.SourceKey == "" {
		return errors.Wrap(errors.ErrValidation, "insert: item missing source key")
	}
	if err := item.Lineage.Validate(); err != nil {
		return errors.Wrap(err, "insert")
	}

	chainJSON, err := item.Lineage.MarshalChain()
	if err != nil {
		return errors.Wrap(err, "insert")
	}

	query := `
		INSERT INTO queue_items (
			id, item_type, stage, status,
			tracking_id, ancestry_chain, spawn_depth,
			source_key, payload, error,
			retry_count, version, next_attempt_at, claimed_at,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(item.Payload), Valid: len(item.Payload) > 0}
	errMsg := sql.NullString{String: item.Error, Valid: item.Error != ""}

	_, err = s.db.Exec(query,
		item.ID,
		item.Type,
		item.Stage,
		item.Status,
		item.Lineage.TrackingID,
		chainJSON,
		item.Lineage.Depth(),
		item.SourceKey,
		payload,
		errMsg,
		item.RetryCount,
		item.Version,
		item.NextAttemptAt,
		item.ClaimedAt,
		item.CreatedAt,
		item.UpdatedAt,
		item.CompletedAt,
	)

	if err != nil {
		if db.IsUniqueConstraint(err) {
			return errors.Wrapf(errors.ErrDuplicatePending,
				"insert: work for (%s, %s) already in flight",
				item.Lineage.TrackingID, item.SourceKey)
		}
		return errors.Wrap(err, "failed to insert item")
	}

	return nil
}

// Get retrieves an item by ID
func (s *Store) Get(id string) (*Item, error) {
	query := `SELECT ` + StandardItemSelectColumns() + ` FROM queue_items WHERE id = ?`

	var item Item
	err := ScanItemFromRow(s.db.QueryRow(query, id), &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get item")
	}

	return &item, nil
}

// ClaimNext atomically selects one claimable pending item of the given
// types, transitions it to processing, and returns it. Returns nil when
// no eligible item exists.
//
// The claim is a conditional update guarded by status and version; when
// two workers pick the same candidate, exactly one update succeeds and
// the loser moves on to the next candidate.
func (s *Store) ClaimNext(types []ItemType) (*Item, error) {
	if len(types) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(types)-1) + "?"
	selectQuery := `SELECT ` + StandardItemSelectColumns() + `
		FROM queue_items
		WHERE status = 'pending'
		  AND item_type IN (` + placeholders + `)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC
		LIMIT 1`

	for {
		args := make([]interface{}, 0, len(types)+1)
		for _, t := range types {
			args = append(args, t)
		}
		args = append(args, time.Now().UTC())

		var item Item
		err := ScanItemFromRow(s.db.QueryRow(selectQuery, args...), &item)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Nothing claimable
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to select claimable item")
		}

		claimedVersion := item.Version
		item.Claim()
		item.Version++

		result, err := s.db.Exec(`
			UPDATE queue_items
			SET status = ?, claimed_at = ?, next_attempt_at = NULL,
			    updated_at = ?, version = ?
			WHERE id = ? AND status = 'pending' AND version = ?`,
			item.Status, item.ClaimedAt, item.UpdatedAt, item.Version,
			item.ID, claimedVersion,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to claim item")
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get rows affected")
		}
		if rows == 1 {
			return &item, nil
		}

		// Lost the race for this item; another worker claimed it first.
		// Loop and try the next candidate.
	}
}

// Update persists mutated fields of an item the caller owns.
//
// Optimistic concurrency: the update only applies if the stored version
// still matches the version the caller loaded; otherwise ErrConflict is
// returned and the caller must re-claim or abandon.
func (s *Store) Update(item *Item) error {
	chainJSON, err := item.Lineage.MarshalChain()
	if err != nil {
		return errors.Wrap(err, "update")
	}

	currentVersion := item.Version
	item.Version++

	payload := sql.NullString{String: string(item.Payload), Valid: len(item.Payload) > 0}
	errMsg := sql.NullString{String: item.Error, Valid: item.Error != ""}

	result, err := s.db.Exec(`
		UPDATE queue_items
		SET stage = ?, status = ?,
		    ancestry_chain = ?, spawn_depth = ?,
		    payload = ?, error = ?,
		    retry_count = ?, version = ?,
		    next_attempt_at = ?, claimed_at = ?,
		    updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ?`,
		item.Stage, item.Status,
		chainJSON, item.Lineage.Depth(),
		payload, errMsg,
		item.RetryCount, item.Version,
		item.NextAttemptAt, item.ClaimedAt,
		item.UpdatedAt, item.CompletedAt,
		item.ID, currentVersion,
	)
	if err != nil {
		item.Version = currentVersion
		return errors.Wrap(err, "failed to update item")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		item.Version = currentVersion
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		item.Version = currentVersion
		return errors.Wrapf(errors.ErrConflict, "item %s version %d", item.ID, currentVersion)
	}

	return nil
}

// FindInFlight returns an item with the given lineage and source key in
// pending or processing status, or nil if none exists.
func (s *Store) FindInFlight(trackingID, sourceKey string) (*Item, error) {
	return s.findOne(trackingID, sourceKey, []Status{StatusPending, StatusProcessing})
}

// FindCompleted returns an item with the given lineage and source key that
// reached terminal success, or nil if none exists.
func (s *Store) FindCompleted(trackingID, sourceKey string) (*Item, error) {
	return s.findOne(trackingID, sourceKey, []Status{StatusSuccess})
}

func (s *Store) findOne(trackingID, sourceKey string, statuses []Status) (*Item, error) {
	placeholders := strings.Repeat("?, ", len(statuses)-1) + "?"
	query := `SELECT ` + StandardItemSelectColumns() + `
		FROM queue_items
		WHERE tracking_id = ? AND source_key = ?
		  AND status IN (` + placeholders + `)
		ORDER BY created_at DESC
		LIMIT 1`

	args := []interface{}{trackingID, sourceKey}
	for _, st := range statuses {
		args = append(args, st)
	}

	var item Item
	err := ScanItemFromRow(s.db.QueryRow(query, args...), &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find item by lineage and source key")
	}

	return &item, nil
}

// SourceKeyBusy reports whether any item, regardless of lineage, has the
// given source key in flight or at terminal success. Intake uses this for
// its global duplicate check.
func (s *Store) SourceKeyBusy(sourceKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM queue_items
			WHERE source_key = ?
			  AND status IN ('pending', 'processing', 'success')
		)`, sourceKey).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check source key")
	}
	return exists, nil
}

// CountByStatus returns item counts grouped by status.
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count items by status")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan status count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating status counts")
	}

	return counts, nil
}

// CountByTypeAndStatus returns item counts grouped by type then status.
func (s *Store) CountByTypeAndStatus() (map[ItemType]map[Status]int, error) {
	rows, err := s.db.Query(`SELECT item_type, status, COUNT(*) FROM queue_items GROUP BY item_type, status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count items by type")
	}
	defer rows.Close()

	counts := make(map[ItemType]map[Status]int)
	for rows.Next() {
		var itemType ItemType
		var status Status
		var count int
		if err := rows.Scan(&itemType, &status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan type count")
		}
		if counts[itemType] == nil {
			counts[itemType] = make(map[Status]int)
		}
		counts[itemType][status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating type counts")
	}

	return counts, nil
}

// QueryFilter narrows a Query iteration. Zero values mean "any".
type QueryFilter struct {
	Status     Status
	Type       ItemType
	TrackingID string
}

// ItemRows is a lazy iterator over query results. Callers must Close it.
type ItemRows struct {
	rows *sql.Rows
	item Item
	err  error
}

// Next advances to the next item, returning false at the end or on error.
func (r *ItemRows) Next() bool {
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}
	r.item = Item{}
	if err := ScanItemFromRows(r.rows, &r.item); err != nil {
		r.err = errors.Wrap(err, "failed to scan item")
		return false
	}
	return true
}

// Item returns the current item. Valid until the next call to Next.
func (r *ItemRows) Item() *Item { return &r.item }

// Err returns the first error encountered during iteration.
func (r *ItemRows) Err() error { return r.err }

// Close releases the underlying rows.
func (r *ItemRows) Close() error { return r.rows.Close() }

// Query returns a lazy iterator over items matching the filter, oldest
// first. It never loads the whole table into memory.
func (s *Store) Query(filter QueryFilter) (*ItemRows, error) {
	query := `SELECT ` + StandardItemSelectColumns() + ` FROM queue_items`
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conds = append(conds, "item_type = ?")
		args = append(args, filter.Type)
	}
	if filter.TrackingID != "" {
		conds = append(conds, "tracking_id = ?")
		args = append(args, filter.TrackingID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query items")
	}

	return &ItemRows{rows: rows}, nil
}

// ReclaimAbandoned returns processing items whose claim is older than
// olderThan back to pending, making work from crashed workers claimable
// again. Returns the number of items reclaimed.
func (s *Store) ReclaimAbandoned(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		UPDATE queue_items
		SET status = 'pending', claimed_at = NULL,
		    updated_at = ?, version = version + 1
		WHERE status = 'processing' AND claimed_at < ?`,
		time.Now().UTC(), cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reclaim abandoned items")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}
