package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GroupSummary is the derived state of one destination group. Groups exist
// implicitly: a group exists as soon as one object maps to its destination
// key. Flags aggregate over members: archived/deleted hold when every member
// has them, ignored holds when any member does.
type GroupSummary struct {
	Destination     string
	Members         int64
	EligibleMembers int64
	TotalSize       int64
	Archived        bool
	Deleted         bool
	Ignored         bool
}

const groupSelect = `SELECT destination_path,
        COUNT(*),
        SUM(CASE WHEN size > 0 THEN 1 ELSE 0 END),
        COALESCE(SUM(size), 0),
        MIN(archived),
        MIN(deleted),
        MAX(ignored)
    FROM objects`

// Group returns the summary for one destination group, or nil when no object
// maps to the destination key.
func (s *Store) Group(ctx context.Context, dest string) (*GroupSummary, error) {
	row := s.db.QueryRowContext(ctx,
		groupSelect+` WHERE destination_path = ? GROUP BY destination_path`, dest)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// EligibleGroups returns groups that are neither archived nor ignored,
// ordered by destination key. A limit <= 0 means no limit.
func (s *Store) EligibleGroups(ctx context.Context, limit int) ([]GroupSummary, error) {
	return s.queryGroups(ctx,
		groupSelect+` GROUP BY destination_path
            HAVING MIN(archived) = 0 AND MAX(ignored) = 0
            ORDER BY destination_path LIMIT ?`, limit)
}

// DeletableGroups returns groups whose archive stage has committed but whose
// members are still present in the store.
func (s *Store) DeletableGroups(ctx context.Context, limit int) ([]GroupSummary, error) {
	return s.queryGroups(ctx,
		groupSelect+` GROUP BY destination_path
            HAVING MIN(archived) = 1 AND MIN(deleted) = 0 AND MAX(ignored) = 0
            ORDER BY destination_path LIMIT ?`, limit)
}

func (s *Store) queryGroups(ctx context.Context, query string, limit int) ([]GroupSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []GroupSummary
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// MemberKeys returns every member path of a group ordered by path.
func (s *Store) MemberKeys(ctx context.Context, dest string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM objects WHERE destination_path = ? ORDER BY path`, dest)
	if err != nil {
		return nil, fmt.Errorf("query member keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ManifestRows returns the members that belong in the group's archive
// manifest: objects with non-zero size, ordered by path. Zero-size marker
// objects count toward membership but never toward manifests.
func (s *Store) ManifestRows(ctx context.Context, dest string) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects
         WHERE destination_path = ? AND size > 0 ORDER BY path`, dest)
	if err != nil {
		return nil, fmt.Errorf("query manifest rows: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, rows.Err()
}

// MarkArchived records a committed archive for every member of the group.
// The flag only ever moves false -> true.
func (s *Store) MarkArchived(ctx context.Context, dest string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET archived = 1 WHERE destination_path = ?`, dest)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

// MarkDeleted records a completed source deletion for the group. It refuses
// with ErrNotArchived unless every member's archive flag is already
// committed: a delete must never be recorded ahead of its archive.
func (s *Store) MarkDeleted(ctx context.Context, dest string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark deleted: %w", err)
	}
	defer tx.Rollback()

	var unarchived int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE destination_path = ? AND archived = 0`, dest).
		Scan(&unarchived)
	if err != nil {
		return fmt.Errorf("check archived state: %w", err)
	}
	if unarchived > 0 {
		return fmt.Errorf("mark deleted %q: %w", dest, ErrNotArchived)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE objects SET deleted = 1 WHERE destination_path = ?`, dest); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark deleted: %w", err)
	}
	return nil
}

// MarkIgnored moves a group to the terminal ignored state. Stage drivers
// check ignored before anything else, so no other flag changes afterwards.
func (s *Store) MarkIgnored(ctx context.Context, dest string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET ignored = 1 WHERE destination_path = ?`, dest)
	if err != nil {
		return fmt.Errorf("mark ignored: %w", err)
	}
	return nil
}

func scanGroup(scanner interface{ Scan(dest ...any) error }) (*GroupSummary, error) {
	var (
		g        GroupSummary
		archived int
		deleted  int
		ignored  int
	)
	if err := scanner.Scan(
		&g.Destination, &g.Members, &g.EligibleMembers, &g.TotalSize,
		&archived, &deleted, &ignored,
	); err != nil {
		return nil, err
	}
	g.Archived = archived != 0
	g.Deleted = deleted != 0
	g.Ignored = ignored != 0
	return &g, nil
}
