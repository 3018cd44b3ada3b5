package pipeline

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teliris/jobscout/errors"
)

// Match is a scored posting persisted by the save stage.
type Match struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	SourceKey string    `json:"source_key"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Score     float64   `json:"score"`
	Rationale string    `json:"rationale"`
	Qualified bool      `json:"qualified"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchStore persists match records in the matches table.
type MatchStore struct {
	db *sql.DB
}

// NewMatchStore creates a match store backed by the given database.
func NewMatchStore(database *sql.DB) *MatchStore {
	return &MatchStore{db: database}
}

// SaveMatch inserts the match, assigning its ID and timestamp.
func (s *MatchStore) SaveMatch(m *Match) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO matches (id, item_id, source_key, title, company, score, rationale, qualified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ItemID, m.SourceKey, m.Title, m.Company, m.Score, m.Rationale, m.Qualified, m.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert match")
	}
	return nil
}

// Count returns the number of saved matches, and how many qualified.
func (s *MatchStore) Count() (total int, qualified int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(qualified), 0) FROM matches
	`).Scan(&total, &qualified)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count matches")
	}
	return total, qualified, nil
}

// Recent returns the newest matches, qualified first.
func (s *MatchStore) Recent(limit int) ([]Match, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, source_key, title, company, score, rationale, qualified, created_at
		FROM matches
		ORDER BY qualified DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query matches")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.ItemID, &m.SourceKey, &m.Title, &m.Company,
			&m.Score, &m.Rationale, &m.Qualified, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan match")
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
