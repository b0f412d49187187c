package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrStaleCluster is returned by AssignItem when the target cluster was
// deleted between the matcher's index read and the write.
var ErrStaleCluster = errors.New("cluster no longer exists")

// ClusterText is the representative text the matcher indexes for a cluster.
type ClusterText struct {
	ID       uuid.UUID
	Text     string
	LastSeen time.Time
}

// InsertCluster creates a new cluster row.
func (s *Store) InsertCluster(ctx context.Context, c *Cluster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clusters (
			cluster_id, title, summary, representative_location_name,
			representative_lat, representative_lon, first_seen_at, last_seen_at,
			item_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID.String(), nullString(c.Title), nullString(c.Summary),
		nullString(c.RepLocationName), nullFloat(c.RepLat), nullFloat(c.RepLon),
		formatNullTime(c.FirstSeenAt), formatNullTime(c.LastSeenAt),
		c.ItemCount, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cluster %s: %w", c.ID, err)
	}
	return nil
}

// GetCluster returns a cluster by ID, or nil if it doesn't exist.
func (s *Store) GetCluster(ctx context.Context, id uuid.UUID) (*Cluster, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clusterColumns+`
		FROM clusters WHERE cluster_id = ?
	`, id.String())

	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster %s: %w", id, err)
	}
	return &c, nil
}

// AssignItem links an item to a cluster and rolls the cluster's seen window
// forward, all in one transaction. Returns ErrStaleCluster if the cluster
// row is gone; the caller drops its index entry and retries the item later.
func (s *Store) AssignItem(ctx context.Context, itemID int64, clusterID uuid.UUID, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM clusters WHERE cluster_id = ?", clusterID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStaleCluster
	}
	if err != nil {
		return fmt.Errorf("check cluster %s: %w", clusterID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE normalized_items SET cluster_id = ? WHERE id = ?",
		clusterID.String(), itemID); err != nil {
		return fmt.Errorf("assign item %d: %w", itemID, err)
	}

	ts := formatTime(now)
	if _, err := tx.ExecContext(ctx, `
		UPDATE clusters SET
			first_seen_at = COALESCE(first_seen_at, ?),
			last_seen_at = ?,
			updated_at = ?,
			item_count = (SELECT COUNT(*) FROM normalized_items WHERE cluster_id = ?)
		WHERE cluster_id = ?
	`, ts, ts, ts, clusterID.String(), clusterID.String()); err != nil {
		return fmt.Errorf("update cluster %s: %w", clusterID, err)
	}

	return tx.Commit()
}

// RecentClusterTexts returns clusters last seen at or after since, newest
// first, with the text the matcher should index: the cluster title, or the
// newest member's title and text when the title is empty.
func (s *Store) RecentClusterTexts(ctx context.Context, since time.Time, limit int) ([]ClusterText, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.cluster_id, c.title, c.last_seen_at,
			(SELECT COALESCE(i.title, '') || char(10) || COALESCE(i.text, '')
			 FROM normalized_items i
			 WHERE i.cluster_id = c.cluster_id
			 ORDER BY COALESCE(i.published_at, i.collected_at) DESC
			 LIMIT 1)
		FROM clusters c
		WHERE c.last_seen_at >= ?
		ORDER BY c.last_seen_at DESC
		LIMIT ?
	`, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent clusters: %w", err)
	}
	defer rows.Close()

	var result []ClusterText
	for rows.Next() {
		var (
			idStr         string
			title, member sql.NullString
			lastSeen      sql.NullString
		)
		if err := rows.Scan(&idStr, &title, &lastSeen, &member); err != nil {
			return nil, fmt.Errorf("scan recent cluster: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse cluster id %q: %w", idStr, err)
		}

		ct := ClusterText{ID: id}
		if title.Valid && title.String != "" {
			ct.Text = title.String
		} else if member.Valid {
			ct.Text = member.String
		}
		if lastSeen.Valid {
			t, err := parseTime(lastSeen.String)
			if err != nil {
				return nil, err
			}
			ct.LastSeen = t
		}
		result = append(result, ct)
	}
	return result, rows.Err()
}

// RecalculateClusters refreshes the derived columns of clusters updated at or
// after updatedSince: member count, representative coordinates (mean of
// located members), modal location name, and the first/last seen window from
// member timestamps. Returns the number of clusters touched.
func (s *Store) RecalculateClusters(ctx context.Context, updatedSince time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cluster_id FROM clusters WHERE updated_at >= ?", formatTime(updatedSince))
	if err != nil {
		return 0, fmt.Errorf("query clusters to recalculate: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE clusters SET
				item_count = (SELECT COUNT(*) FROM normalized_items WHERE cluster_id = ?1),
				representative_lat = (SELECT AVG(lat) FROM normalized_items
					WHERE cluster_id = ?1 AND lat IS NOT NULL AND lon IS NOT NULL),
				representative_lon = (SELECT AVG(lon) FROM normalized_items
					WHERE cluster_id = ?1 AND lat IS NOT NULL AND lon IS NOT NULL),
				representative_location_name = (SELECT location_name FROM normalized_items
					WHERE cluster_id = ?1 AND location_name IS NOT NULL AND location_name != ''
					GROUP BY location_name
					ORDER BY COUNT(*) DESC, location_name
					LIMIT 1),
				first_seen_at = (SELECT MIN(COALESCE(published_at, collected_at))
					FROM normalized_items WHERE cluster_id = ?1),
				last_seen_at = (SELECT MAX(COALESCE(published_at, collected_at))
					FROM normalized_items WHERE cluster_id = ?1)
			WHERE cluster_id = ?1
		`, id); err != nil {
			return 0, fmt.Errorf("recalculate cluster %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// ClustersSince returns clusters last seen at or after since, newest first.
func (s *Store) ClustersSince(ctx context.Context, since time.Time, limit int) ([]Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clusterColumns+`
		FROM clusters
		WHERE last_seen_at >= ?
		ORDER BY last_seen_at DESC
		LIMIT ?
	`, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query clusters since: %w", err)
	}
	defer rows.Close()
	return scanClusters(rows)
}

// ClustersLastSeenBefore returns clusters whose window closed before cutoff,
// oldest first. Used by retention cleanup.
func (s *Store) ClustersLastSeenBefore(ctx context.Context, cutoff time.Time, limit int) ([]Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clusterColumns+`
		FROM clusters
		WHERE last_seen_at < ?
		ORDER BY last_seen_at ASC
		LIMIT ?
	`, formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale clusters: %w", err)
	}
	defer rows.Close()
	return scanClusters(rows)
}

// DeleteCluster detaches a cluster's members and removes the cluster row in
// one transaction. Returns the number of detached items.
func (s *Store) DeleteCluster(ctx context.Context, id uuid.UUID) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete cluster: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE normalized_items SET cluster_id = NULL WHERE cluster_id = ?", id.String())
	if err != nil {
		return 0, fmt.Errorf("detach items of %s: %w", id, err)
	}
	detached, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM clusters WHERE cluster_id = ?", id.String()); err != nil {
		return 0, fmt.Errorf("delete cluster %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return detached, nil
}

// Stats returns the aggregate counts for GET /stats.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM normalized_items),
		       (SELECT COUNT(*) FROM normalized_items WHERE cluster_id IS NOT NULL),
		       (SELECT COUNT(*) FROM clusters)
	`).Scan(&st.Items, &st.ClusteredItems, &st.Clusters)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// DeleteAll truncates both tables. Returns (clusters deleted, items deleted).
func (s *Store) DeleteAll(ctx context.Context) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin delete all: %w", err)
	}
	defer tx.Rollback()

	cres, err := tx.ExecContext(ctx, "DELETE FROM clusters")
	if err != nil {
		return 0, 0, fmt.Errorf("delete clusters: %w", err)
	}
	ires, err := tx.ExecContext(ctx, "DELETE FROM normalized_items")
	if err != nil {
		return 0, 0, fmt.Errorf("delete items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	clusters, _ := cres.RowsAffected()
	items, _ := ires.RowsAffected()
	return clusters, items, nil
}

const clusterColumns = `cluster_id, title, summary, representative_location_name,
	representative_lat, representative_lon, first_seen_at, last_seen_at,
	item_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClusters(rows *sql.Rows) ([]Cluster, error) {
	var result []Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCluster(row rowScanner) (Cluster, error) {
	var (
		c                    Cluster
		idStr                string
		title, summary       sql.NullString
		locationName         sql.NullString
		lat, lon             sql.NullFloat64
		firstSeen, lastSeen  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&idStr, &title, &summary, &locationName, &lat, &lon,
		&firstSeen, &lastSeen, &c.ItemCount, &createdAt, &updatedAt,
	); err != nil {
		return Cluster{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Cluster{}, fmt.Errorf("parse cluster id %q: %w", idStr, err)
	}
	c.ID = id
	c.Title = title.String
	c.Summary = summary.String
	c.RepLocationName = locationName.String
	scanNullFloat(lat, &c.RepLat)
	scanNullFloat(lon, &c.RepLon)
	if err := scanNullTime(firstSeen, &c.FirstSeenAt); err != nil {
		return Cluster{}, err
	}
	if err := scanNullTime(lastSeen, &c.LastSeenAt); err != nil {
		return Cluster{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Cluster{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Cluster{}, err
	}
	return c, nil
}
