package api

import (
	"context"
	"strings"
	"time"

	"github.com/mihasm/news-globe/internal/store"
)

// featureCollection is the GET /clusters response body.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties clusterDetails `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
}

type clusterDetails struct {
	ClusterID    string        `json:"cluster_id"`
	ItemCount    int           `json:"item_count"`
	Title        string        `json:"title"`
	Summary      string        `json:"summary"`
	LocationName string        `json:"representative_location_name"`
	LocationKey  *string       `json:"location_key"`
	Lat          float64       `json:"representative_lat"`
	Lon          float64       `json:"representative_lon"`
	FirstSeenAt  *string       `json:"first_seen_at"`
	LastSeenAt   *string       `json:"last_seen_at"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
	Items        []clusterItem `json:"items"`
}

type clusterItem struct {
	ID           int64          `json:"id"`
	Source       string         `json:"source"`
	SourceID     string         `json:"source_id"`
	CollectedAt  string         `json:"collected_at"`
	PublishedAt  *string        `json:"published_at"`
	Title        string         `json:"title"`
	Text         string         `json:"text"`
	URL          string         `json:"url"`
	Author       string         `json:"author"`
	MediaURLs    []string       `json:"media_urls"`
	Entities     map[string]any `json:"entities"`
	LocationName string         `json:"location_name"`
	Lat          *float64       `json:"lat"`
	Lon          *float64       `json:"lon"`
	ClusterID    *string        `json:"cluster_id"`
}

// toFeatureCollection renders clusters as GeoJSON Point features. Clusters
// without representative coordinates cannot be placed on a map and are
// skipped.
func (s *Server) toFeatureCollection(ctx context.Context, clusters []store.Cluster) (*featureCollection, error) {
	fc := &featureCollection{Type: "FeatureCollection", Features: []feature{}}

	for i := range clusters {
		c := &clusters[i]
		if c.RepLat == nil || c.RepLon == nil {
			continue
		}

		members, err := s.store.ItemsForCluster(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		items := make([]clusterItem, 0, len(members))
		for j := range members {
			items = append(items, toClusterItem(&members[j]))
		}

		var locationKey *string
		if c.RepLocationName != "" {
			key := strings.ToLower(c.RepLocationName)
			locationKey = &key
		}

		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: geometry{
				Type:        "Point",
				Coordinates: [2]float64{*c.RepLon, *c.RepLat},
			},
			Properties: clusterDetails{
				ClusterID:    c.ID.String(),
				ItemCount:    c.ItemCount,
				Title:        c.Title,
				Summary:      c.Summary,
				LocationName: c.RepLocationName,
				LocationKey:  locationKey,
				Lat:          *c.RepLat,
				Lon:          *c.RepLon,
				FirstSeenAt:  formatNullTime(c.FirstSeenAt),
				LastSeenAt:   formatNullTime(c.LastSeenAt),
				CreatedAt:    formatTime(c.CreatedAt),
				UpdatedAt:    formatTime(c.UpdatedAt),
				Items:        items,
			},
		})
	}
	return fc, nil
}

func toClusterItem(it *store.Item) clusterItem {
	ci := clusterItem{
		ID:           it.ID,
		Source:       it.Source,
		SourceID:     it.SourceID,
		CollectedAt:  formatTime(it.CollectedAt),
		Title:        it.Title,
		Text:         it.Text,
		URL:          it.URL,
		Author:       it.Author,
		MediaURLs:    it.MediaURLs,
		Entities:     it.Entities,
		LocationName: it.LocationName,
		Lat:          it.Lat,
		Lon:          it.Lon,
	}
	if !it.PublishedAt.IsZero() {
		p := formatTime(it.PublishedAt)
		ci.PublishedAt = &p
	}
	if it.ClusterID != nil {
		id := it.ClusterID.String()
		ci.ClusterID = &id
	}
	return ci
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
