package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// existingIDsChunk bounds the IN-list size per query.
const existingIDsChunk = 500

// UpsertItem inserts an item, doing nothing on a (source, source_id)
// conflict. Returns true when a row was actually inserted.
func (s *Store) UpsertItem(ctx context.Context, it *Item) (bool, error) {
	mediaJSON, err := marshalNullable(it.MediaURLs)
	if err != nil {
		return false, fmt.Errorf("marshal media_urls: %w", err)
	}
	entitiesJSON, err := marshalNullable(it.Entities)
	if err != nil {
		return false, fmt.Errorf("marshal entities: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO normalized_items (
			source, source_id, collected_at, title, text, url, author,
			media_urls, published_at, entities, location_name, lat, lon,
			cluster_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(source, source_id) DO NOTHING
	`,
		it.Source, it.SourceID, formatTime(it.CollectedAt),
		nullString(it.Title), nullString(it.Text), nullString(it.URL), nullString(it.Author),
		mediaJSON, formatZeroTime(it.PublishedAt), entitiesJSON,
		nullString(it.LocationName), nullFloat(it.Lat), nullFloat(it.Lon),
		formatTime(it.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert item %s/%s: %w", it.Source, it.SourceID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ExistingIDs returns which of the given source IDs already have a row for
// the source. Used by the pipeline to prefilter batches before upserting.
func (s *Store) ExistingIDs(ctx context.Context, source string, sourceIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(sourceIDs); start += existingIDsChunk {
		end := min(start+existingIDsChunk, len(sourceIDs))
		chunk := sourceIDs[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, source)
		for _, id := range chunk {
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT source_id FROM normalized_items WHERE source = ? AND source_id IN ("+placeholders+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("query existing ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan existing id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

// UnassignedItems returns items without a cluster, newest collected first.
func (s *Store) UnassignedItems(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM normalized_items
		WHERE cluster_id IS NULL
		ORDER BY collected_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unassigned items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ItemsForCluster returns a cluster's members, newest published first.
// Items without a publication date order by collection time.
func (s *Store) ItemsForCluster(ctx context.Context, clusterID uuid.UUID) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM normalized_items
		WHERE cluster_id = ?
		ORDER BY COALESCE(published_at, collected_at) DESC
	`, clusterID.String())
	if err != nil {
		return nil, fmt.Errorf("query cluster items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

const itemColumns = `id, source, source_id, collected_at, title, text, url, author,
	media_urls, published_at, entities, location_name, lat, lon, cluster_id, created_at`

func scanItems(rows *sql.Rows) ([]Item, error) {
	var result []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func scanItem(rows *sql.Rows) (Item, error) {
	var (
		it                     Item
		collectedAt, createdAt string
		published              sql.NullString
		title, text, url       sql.NullString
		author, media          sql.NullString
		entities, locationName sql.NullString
		lat, lon               sql.NullFloat64
		clusterID              sql.NullString
	)
	if err := rows.Scan(
		&it.ID, &it.Source, &it.SourceID, &collectedAt, &title, &text, &url, &author,
		&media, &published, &entities, &locationName, &lat, &lon, &clusterID, &createdAt,
	); err != nil {
		return Item{}, fmt.Errorf("scan item: %w", err)
	}

	var err error
	if it.CollectedAt, err = parseTime(collectedAt); err != nil {
		return Item{}, err
	}
	if published.Valid {
		if it.PublishedAt, err = parseTime(published.String); err != nil {
			return Item{}, err
		}
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return Item{}, err
	}

	it.Title = title.String
	it.Text = text.String
	it.URL = url.String
	it.Author = author.String
	it.LocationName = locationName.String
	scanNullFloat(lat, &it.Lat)
	scanNullFloat(lon, &it.Lon)
	if err := scanNullUUID(clusterID, &it.ClusterID); err != nil {
		return Item{}, err
	}
	if media.Valid {
		if err := json.Unmarshal([]byte(media.String), &it.MediaURLs); err != nil {
			return Item{}, fmt.Errorf("unmarshal media_urls: %w", err)
		}
	}
	if entities.Valid {
		if err := json.Unmarshal([]byte(entities.String), &it.Entities); err != nil {
			return Item{}, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return it, nil
}

// marshalNullable renders v as JSON, mapping empty values to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
