package store

import (
	"context"
	"fmt"
	"time"
)

// CountProjects counts the user's projects that are not soft-deleted.
func (s *Store) CountProjects(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM projects WHERE user_id = $1 AND deleted_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count projects: %w", err)
	}
	return n, nil
}

// CountQueriesSince counts feedback queries created at or after since.
func (s *Store) CountQueriesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM feedback_queries WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count queries: %w", err)
	}
	return n, nil
}
