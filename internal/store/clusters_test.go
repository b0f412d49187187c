package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testCluster(title string, created time.Time) *Cluster {
	return &Cluster{
		ID:        uuid.Must(uuid.NewV7()),
		Title:     title,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestInsertAndGetCluster(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lat, lon := 35.6895, 139.6917
	seen := testBase
	in := &Cluster{
		ID:              uuid.Must(uuid.NewV7()),
		Title:           "Earthquake strikes Tokyo",
		RepLocationName: "Tokyo",
		RepLat:          &lat,
		RepLon:          &lon,
		FirstSeenAt:     &seen,
		LastSeenAt:      &seen,
		ItemCount:       0,
		CreatedAt:       testBase,
		UpdatedAt:       testBase,
	}
	if err := s.InsertCluster(ctx, in); err != nil {
		t.Fatalf("InsertCluster: %v", err)
	}

	got, err := s.GetCluster(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	if got == nil {
		t.Fatal("GetCluster returned nil for existing cluster")
	}
	if got.Title != in.Title || got.RepLocationName != "Tokyo" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.RepLat == nil || *got.RepLat != lat {
		t.Errorf("rep lat = %v, want %v", got.RepLat, lat)
	}
	if got.FirstSeenAt == nil || !got.FirstSeenAt.Equal(seen) {
		t.Errorf("first_seen_at = %v, want %v", got.FirstSeenAt, seen)
	}

	// Missing cluster: nil, no error.
	missing, err := s.GetCluster(ctx, uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("GetCluster missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing cluster, got %+v", missing)
	}
}

func TestAssignItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCluster("Tokyo quake", testBase)
	if err := s.InsertCluster(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertItem(ctx, testItem("usgs", "ev1", testBase)); err != nil {
		t.Fatal(err)
	}
	id := itemID(t, s, "usgs", "ev1")

	now := testBase.Add(5 * time.Minute)
	if err := s.AssignItem(ctx, id, c.ID, now); err != nil {
		t.Fatalf("AssignItem: %v", err)
	}

	got, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ItemCount != 1 {
		t.Errorf("item_count = %d, want 1", got.ItemCount)
	}
	if got.FirstSeenAt == nil || !got.FirstSeenAt.Equal(now) {
		t.Errorf("first_seen_at = %v, want %v", got.FirstSeenAt, now)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(now) {
		t.Errorf("last_seen_at = %v, want %v", got.LastSeenAt, now)
	}

	// Second assignment advances last_seen but keeps first_seen.
	if _, err := s.UpsertItem(ctx, testItem("usgs", "ev2", testBase)); err != nil {
		t.Fatal(err)
	}
	later := now.Add(10 * time.Minute)
	if err := s.AssignItem(ctx, itemID(t, s, "usgs", "ev2"), c.ID, later); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ItemCount != 2 {
		t.Errorf("item_count = %d, want 2", got.ItemCount)
	}
	if !got.FirstSeenAt.Equal(now) {
		t.Errorf("first_seen_at moved: %v, want %v", got.FirstSeenAt, now)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("last_seen_at = %v, want %v", got.LastSeenAt, later)
	}

	// The item actually carries the cluster id.
	items, err := s.ItemsForCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("cluster has %d items, want 2", len(items))
	}
}

func TestAssignItemStaleCluster(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertItem(ctx, testItem("usgs", "ev1", testBase)); err != nil {
		t.Fatal(err)
	}
	id := itemID(t, s, "usgs", "ev1")

	err := s.AssignItem(ctx, id, uuid.Must(uuid.NewV7()), testBase)
	if !errors.Is(err, ErrStaleCluster) {
		t.Fatalf("expected ErrStaleCluster, got %v", err)
	}

	// The item must remain unassigned.
	items, err := s.UnassignedItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("expected item to stay unassigned, got %d unassigned", len(items))
	}
}

func TestRecentClusterTexts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Cluster with a title: text is the title.
	titled := testCluster("ECB cuts rates", testBase)
	seen := testBase
	titled.LastSeenAt = &seen
	if err := s.InsertCluster(ctx, titled); err != nil {
		t.Fatal(err)
	}

	// Cluster without a title: text falls back to the newest member.
	untitled := testCluster("", testBase)
	untitled.LastSeenAt = &seen
	if err := s.InsertCluster(ctx, untitled); err != nil {
		t.Fatal(err)
	}

	old := testItem("rss", "old", testBase.Add(-2*time.Hour))
	old.Title = "older headline"
	old.Text = "older body"
	old.PublishedAt = testBase.Add(-2 * time.Hour)
	if _, err := s.UpsertItem(ctx, old); err != nil {
		t.Fatal(err)
	}
	newest := testItem("rss", "new", testBase)
	newest.Title = "newest headline"
	newest.Text = "newest body"
	newest.PublishedAt = testBase
	if _, err := s.UpsertItem(ctx, newest); err != nil {
		t.Fatal(err)
	}
	for _, sid := range []string{"old", "new"} {
		if err := s.AssignItem(ctx, itemID(t, s, "rss", sid), untitled.ID, testBase); err != nil {
			t.Fatal(err)
		}
	}

	// Cluster outside the window: excluded.
	stale := testCluster("ancient", testBase)
	staleSeen := testBase.Add(-100 * time.Hour)
	stale.LastSeenAt = &staleSeen
	if err := s.InsertCluster(ctx, stale); err != nil {
		t.Fatal(err)
	}

	texts, err := s.RecentClusterTexts(ctx, testBase.Add(-72*time.Hour), 100)
	if err != nil {
		t.Fatalf("RecentClusterTexts: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("got %d cluster texts, want 2", len(texts))
	}

	byID := map[uuid.UUID]ClusterText{}
	for _, ct := range texts {
		byID[ct.ID] = ct
	}
	if got := byID[titled.ID].Text; got != "ECB cuts rates" {
		t.Errorf("titled text = %q", got)
	}
	if got := byID[untitled.ID].Text; got != "newest headline\nnewest body" {
		t.Errorf("untitled text = %q, want newest member title+text", got)
	}
}

func TestRecalculateClusters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCluster("flood", testBase)
	if err := s.InsertCluster(ctx, c); err != nil {
		t.Fatal(err)
	}

	coords := []struct {
		id       string
		lat, lon float64
		name     string
		pub      time.Time
	}{
		{"a", 10, 20, "Lagos", testBase.Add(-3 * time.Hour)},
		{"b", 20, 40, "Lagos", testBase.Add(-1 * time.Hour)},
		{"c", 30, 60, "Abuja", testBase},
	}
	for _, cd := range coords {
		it := testItem("rss", cd.id, testBase)
		lat, lon := cd.lat, cd.lon
		it.Lat, it.Lon = &lat, &lon
		it.LocationName = cd.name
		it.PublishedAt = cd.pub
		if _, err := s.UpsertItem(ctx, it); err != nil {
			t.Fatal(err)
		}
		if err := s.AssignItem(ctx, itemID(t, s, "rss", cd.id), c.ID, testBase); err != nil {
			t.Fatal(err)
		}
	}
	// One member without coordinates or location must not skew averages.
	bare := testItem("rss", "bare", testBase)
	bare.PublishedAt = testBase.Add(time.Hour)
	if _, err := s.UpsertItem(ctx, bare); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignItem(ctx, itemID(t, s, "rss", "bare"), c.ID, testBase); err != nil {
		t.Fatal(err)
	}

	n, err := s.RecalculateClusters(ctx, testBase.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecalculateClusters: %v", err)
	}
	if n != 1 {
		t.Fatalf("recalculated %d clusters, want 1", n)
	}

	got, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ItemCount != 4 {
		t.Errorf("item_count = %d, want 4", got.ItemCount)
	}
	if got.RepLat == nil || *got.RepLat != 20 {
		t.Errorf("rep lat = %v, want 20 (mean of located members)", got.RepLat)
	}
	if got.RepLon == nil || *got.RepLon != 40 {
		t.Errorf("rep lon = %v, want 40", got.RepLon)
	}
	if got.RepLocationName != "Lagos" {
		t.Errorf("rep location = %q, want modal Lagos", got.RepLocationName)
	}
	if got.FirstSeenAt == nil || !got.FirstSeenAt.Equal(testBase.Add(-3*time.Hour)) {
		t.Errorf("first_seen_at = %v, want min published", got.FirstSeenAt)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(testBase.Add(time.Hour)) {
		t.Errorf("last_seen_at = %v, want max published", got.LastSeenAt)
	}
}

func TestClustersSinceAndCleanupQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkCluster := func(title string, lastSeen time.Time) *Cluster {
		c := testCluster(title, testBase)
		c.LastSeenAt = &lastSeen
		if err := s.InsertCluster(ctx, c); err != nil {
			t.Fatal(err)
		}
		return c
	}

	fresh := mkCluster("fresh", testBase)
	mid := mkCluster("mid", testBase.Add(-24*time.Hour))
	old := mkCluster("old", testBase.Add(-40*24*time.Hour))

	recent, err := s.ClustersSince(ctx, testBase.Add(-48*time.Hour), 10)
	if err != nil {
		t.Fatalf("ClustersSince: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent clusters, want 2", len(recent))
	}
	// Newest first.
	if recent[0].ID != fresh.ID || recent[1].ID != mid.ID {
		t.Errorf("order = %v, %v", recent[0].Title, recent[1].Title)
	}

	staleOnes, err := s.ClustersLastSeenBefore(ctx, testBase.Add(-30*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ClustersLastSeenBefore: %v", err)
	}
	if len(staleOnes) != 1 || staleOnes[0].ID != old.ID {
		t.Fatalf("stale clusters = %v", staleOnes)
	}
}

func TestDeleteClusterDetachesMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCluster("doomed", testBase)
	if err := s.InsertCluster(ctx, c); err != nil {
		t.Fatal(err)
	}
	for _, sid := range []string{"x", "y"} {
		if _, err := s.UpsertItem(ctx, testItem("rss", sid, testBase)); err != nil {
			t.Fatal(err)
		}
		if err := s.AssignItem(ctx, itemID(t, s, "rss", sid), c.ID, testBase); err != nil {
			t.Fatal(err)
		}
	}

	detached, err := s.DeleteCluster(ctx, c.ID)
	if err != nil {
		t.Fatalf("DeleteCluster: %v", err)
	}
	if detached != 2 {
		t.Errorf("detached = %d, want 2", detached)
	}

	gone, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("cluster still present after delete")
	}

	// Members survive, unassigned.
	unassigned, err := s.UnassignedItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unassigned) != 2 {
		t.Errorf("unassigned after delete = %d, want 2", len(unassigned))
	}
}

func TestStatsAndDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCluster("counted", testBase)
	if err := s.InsertCluster(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertItem(ctx, testItem("usgs", "in-cluster", testBase)); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignItem(ctx, itemID(t, s, "usgs", "in-cluster"), c.ID, testBase); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertItem(ctx, testItem("usgs", "loose", testBase)); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Items != 2 || st.ClusteredItems != 1 || st.Clusters != 1 {
		t.Errorf("stats = %+v, want 2/1/1", st)
	}

	clusters, items, err := s.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if clusters != 1 || items != 2 {
		t.Errorf("deleted %d clusters, %d items; want 1, 2", clusters, items)
	}

	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Items != 0 || st.Clusters != 0 {
		t.Errorf("stats after delete-all = %+v, want zeros", st)
	}
}
