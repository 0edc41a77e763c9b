package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	dbURL := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	repo, err := NewSQLiteRepository(dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func createLink(t *testing.T, repo *SQLiteRepository, code string) *domain.Link {
	t.Helper()

	link := &domain.Link{
		OriginalURL: "https://example.com/" + code,
		ShortCode:   code,
		Title:       code,
		Tags:        []string{"test"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), link))

	return link
}

func recordVisit(t *testing.T, repo *SQLiteRepository, link *domain.Link, id, addr string) *domain.Visit {
	t.Helper()

	visit := &domain.Visit{
		ID:        id,
		LinkID:    link.ID,
		Visitor:   domain.Visitor{Referer: "https://ref.example", UserAgent: "curl/8.0", RemoteAddr: addr},
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.RecordVisit(context.Background(), visit))

	return visit
}

func TestRepository_LinkCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	link := createLink(t, repo, "abc123")
	assert.NotZero(t, link.ID)

	got, err := repo.GetByShortCode(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, link.OriginalURL, got.OriginalURL)
	assert.Equal(t, []string{"test"}, got.Tags)

	got.Title = "renamed"
	got.UpdatedAt = time.Now()
	require.NoError(t, repo.Update(ctx, got))

	byID, err := repo.GetByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", byID.Title)

	count, err := repo.Count(ctx, map[string]interface{}{"tag": "test"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.Delete(ctx, link.ID))
	missing, err := repo.GetByShortCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_FindVisit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	link := createLink(t, repo, "def456")
	recordVisit(t, repo, link, "visit-1", "1.2.3.0")

	visit, err := repo.FindVisit(ctx, "visit-1")
	require.NoError(t, err)
	require.NotNil(t, visit)
	assert.Equal(t, link.ID, visit.LinkID)
	assert.Equal(t, "1.2.3.0", visit.RemoteAddr())
	assert.Equal(t, "curl/8.0", visit.Visitor.UserAgent)
	assert.Nil(t, visit.Location)

	missing, err := repo.FindVisit(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_FlushPersistsLocation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	link := createLink(t, repo, "loc")
	visit := recordVisit(t, repo, link, "visit-1", "1.2.3.0")

	visit.Locate(domain.NewVisitLocation(domain.Location{
		CountryCode: "ES",
		CountryName: "Spain",
		RegionName:  "Madrid",
		CityName:    "Madrid",
		Latitude:    40.4,
		Longitude:   -3.7,
		Timezone:    "Europe/Madrid",
	}))
	require.NoError(t, repo.Flush(ctx, visit))
	assert.NotZero(t, visit.Location.ID)

	// flushing again keeps the same row
	require.NoError(t, repo.Flush(ctx, visit))

	stored, err := repo.FindVisit(ctx, "visit-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Location)
	assert.Equal(t, *visit.Location, *stored.Location)

	unlocated, err := repo.FindUnlocatedVisits(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unlocated)
}

func TestRepository_FlushIgnoresUnknownLocation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	link := createLink(t, repo, "unknown")
	visit := recordVisit(t, repo, link, "visit-1", "1.2.3.0")

	visit.Locate(domain.UnknownVisitLocation())
	require.NoError(t, repo.Flush(ctx, visit))

	unlocated, err := repo.FindUnlocatedVisits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unlocated, 1)
	assert.Equal(t, "visit-1", unlocated[0].ID)
}

func TestRepository_EmptyLocationCountsAsLocated(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	link := createLink(t, repo, "empty")
	visit := recordVisit(t, repo, link, "visit-1", "")

	visit.Locate(domain.NewVisitLocation(domain.EmptyLocation()))
	require.NoError(t, repo.Flush(ctx, visit))

	stored, err := repo.FindVisit(ctx, "visit-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Location)
	assert.True(t, stored.Location.IsEmpty())
	assert.True(t, stored.IsLocated())
}

func TestRepository_StatsAndVisits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	link := createLink(t, repo, "stats")

	for i, country := range []string{"Spain", "Spain", "France"} {
		v := recordVisit(t, repo, link, fmt.Sprintf("visit-%d", i), "1.2.3.0")
		v.Locate(domain.NewVisitLocation(domain.Location{CountryName: country, CityName: country + " city"}))
		require.NoError(t, repo.Flush(ctx, v))
	}
	recordVisit(t, repo, link, "visit-pending", "4.3.2.0")

	stats, err := repo.GetLinkStats(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalClicks)
	assert.Equal(t, map[string]int64{"Spain": 2, "France": 1}, stats.Countries)
	assert.Equal(t, int64(2), stats.Cities["Spain city"])
	assert.Equal(t, int64(4), stats.Referrers["https://ref.example"])

	agents, err := repo.GetUserAgentCounts(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserAgentCount{{UserAgent: "curl/8.0", Count: 4}}, agents)

	visits, err := repo.ListVisits(ctx, link.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, visits, 2)

	links, total, err := repo.GetDashboardStats(ctx, 10, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, links, 1)
	assert.Equal(t, int64(4), links[0].Clicks)
}
