package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresQueryStore implements QueryStore backed by the saved_queries table.
type PostgresQueryStore struct {
	db *sql.DB
}

func NewPostgresQueryStore(db *sql.DB) *PostgresQueryStore {
	return &PostgresQueryStore{db: db}
}

// Add inserts a new saved query. Documents are sent as text so the jsonb
// column parses them.
func (s *PostgresQueryStore) Add(q *SavedQuery) error {
	if err := check(q); err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO saved_queries (id, name, catalog, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, q.ID, q.Name, q.Catalog, string(q.Document), now, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, q.ID)
		}
		return fmt.Errorf("failed to insert saved query: %w", err)
	}

	q.CreatedAt = now
	q.UpdatedAt = now
	return nil
}

func (s *PostgresQueryStore) Get(id string) (*SavedQuery, error) {
	var q SavedQuery
	err := s.db.QueryRow(`
		SELECT id, name, catalog, document, created_at, updated_at
		FROM saved_queries
		WHERE id = $1
	`, id).Scan(&q.ID, &q.Name, &q.Catalog, &q.Document, &q.CreatedAt, &q.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved query: %w", err)
	}
	return &q, nil
}

func (s *PostgresQueryStore) List() ([]*SavedQuery, error) {
	rows, err := s.db.Query(`
		SELECT id, name, catalog, document, created_at, updated_at
		FROM saved_queries
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	defer rows.Close()

	var out []*SavedQuery
	for rows.Next() {
		var q SavedQuery
		if err := rows.Scan(&q.ID, &q.Name, &q.Catalog, &q.Document, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved query: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved queries: %w", err)
	}
	return out, nil
}

func (s *PostgresQueryStore) Update(q *SavedQuery) error {
	if err := check(q); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.db.QueryRow(`
		UPDATE saved_queries
		SET name = $1, catalog = $2, document = $3, updated_at = $4
		WHERE id = $5
		RETURNING created_at
	`, q.Name, q.Catalog, string(q.Document), now, q.ID).Scan(&q.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, q.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update saved query: %w", err)
	}
	q.UpdatedAt = now
	return nil
}

func (s *PostgresQueryStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM saved_queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved query: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
