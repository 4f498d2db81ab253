package catalog

import (
	"context"
	"fmt"
)

// Stats aggregates catalog state for the status command.
type Stats struct {
	Objects        int64
	TotalSize      int64
	Groups         int64
	ArchivedGroups int64
	DeletedGroups  int64
	IgnoredGroups  int64
	PendingGroups  int64
}

// Stats returns aggregate counts over objects and derived groups.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM objects`).
		Scan(&st.Objects, &st.TotalSize)
	if err != nil {
		return Stats{}, fmt.Errorf("object stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT MIN(archived), MIN(deleted), MAX(ignored)
         FROM objects GROUP BY destination_path`)
	if err != nil {
		return Stats{}, fmt.Errorf("group stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var archived, deleted, ignored int
		if err := rows.Scan(&archived, &deleted, &ignored); err != nil {
			return Stats{}, err
		}
		st.Groups++
		switch {
		case ignored != 0:
			st.IgnoredGroups++
		case deleted != 0:
			st.DeletedGroups++
		case archived != 0:
			st.ArchivedGroups++
		default:
			st.PendingGroups++
		}
	}
	return st, rows.Err()
}
