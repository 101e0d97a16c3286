package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/ratelimit"
	"github.com/knosm/pixisync/app/settings"
)

// fakeClient scripts remote responses per endpoint. Pagination maps are
// keyed by offset, "" being the first page.
type fakeClient struct {
	ranking       map[string]*pixiv.WorksPage
	following     map[string]*pixiv.FollowingPage
	userWorks     map[int64]map[string]*pixiv.WorksPage
	followedWorks map[string]*pixiv.WorksPage
	details       map[int64]*pixiv.WorkDetail

	userWorksErr map[string]error

	detailErr error
	calls     int
}

func (f *fakeClient) RefreshTokens(ctx context.Context) (pixiv.Credentials, error) {
	return pixiv.Credentials{AccessToken: "access", RefreshToken: "refresh", UserID: 1}, nil
}

func (f *fakeClient) VerifyToken(ctx context.Context) error { return nil }

func (f *fakeClient) GetRanking(ctx context.Context, mode string) (*pixiv.WorksPage, error) {
	f.calls++
	if page, ok := f.ranking[mode]; ok {
		return page, nil
	}
	return &pixiv.WorksPage{}, nil
}

func (f *fakeClient) GetFollowing(ctx context.Context, userID int64, offset string) (*pixiv.FollowingPage, error) {
	f.calls++
	if page, ok := f.following[offset]; ok {
		return page, nil
	}
	return &pixiv.FollowingPage{}, nil
}

func (f *fakeClient) GetUserWorks(ctx context.Context, userID int64, offset string) (*pixiv.WorksPage, error) {
	f.calls++
	if err, ok := f.userWorksErr[offset]; ok {
		return nil, err
	}
	if pages, ok := f.userWorks[userID]; ok {
		if page, ok := pages[offset]; ok {
			return page, nil
		}
	}
	return &pixiv.WorksPage{}, nil
}

func (f *fakeClient) GetFollowedWorks(ctx context.Context, offset string) (*pixiv.WorksPage, error) {
	f.calls++
	if page, ok := f.followedWorks[offset]; ok {
		return page, nil
	}
	return &pixiv.WorksPage{}, nil
}

func (f *fakeClient) GetWorkDetail(ctx context.Context, illustID int64) (*pixiv.WorkDetail, error) {
	f.calls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if detail, ok := f.details[illustID]; ok {
		return detail, nil
	}
	return nil, pixiv.ErrNotFound
}

type testEnv struct {
	collector *Collector
	db        *database.DB
	artworks  database.ArtworkRepository
	follows   database.FollowRepository
	logs      database.CollectionLogRepository
	settings  *settings.Store
	client    *fakeClient
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	artworks := database.NewArtworkRepository(db)
	follows := database.NewFollowRepository(db)
	logs := database.NewCollectionLogRepository(db)
	store := settings.NewStore(database.NewSystemConfigRepository(db))

	// Zero delays keep tests fast.
	require.NoError(t, store.SetFloat(settings.KeyAPIDelayMin, 0))
	require.NoError(t, store.SetFloat(settings.KeyAPIDelayMax, 0))
	require.NoError(t, store.SetFloat(settings.KeyErrorDelayOtherMin, 0))
	require.NoError(t, store.SetFloat(settings.KeyErrorDelayOtherMax, 0))
	require.NoError(t, store.SetString(settings.KeyRefreshToken, "refresh"))

	client := &fakeClient{}
	collector := NewCollector(artworks, follows, logs, store, client,
		pixiv.NewTokenManager(store, client), ratelimit.NewLimiter(store))

	// Repositories stamp rows with the wall clock, so the collector clock
	// has to stay on it too.
	now := time.Now().UTC().Truncate(time.Second)
	collector.now = func() time.Time { return now }

	return &testEnv{
		collector: collector,
		db:        db,
		artworks:  artworks,
		follows:   follows,
		logs:      logs,
		settings:  store,
		client:    client,
		now:       now,
	}
}

func work(id, userID int64, createDate time.Time, pageURLs ...string) pixiv.Work {
	w := pixiv.Work{
		ID:         id,
		Title:      "work",
		Type:       pixiv.WorkTypeIllust,
		User:       pixiv.User{ID: userID, Name: "creator"},
		CreateDate: createDate,
		PageCount:  1,
		ImageURL:   "https://img.example/p0.jpg",
	}
	if len(pageURLs) > 0 {
		w.PageCount = len(pageURLs)
		w.PageImageURLs = pageURLs
	}
	return w
}

func lastLog(t *testing.T, env *testEnv) database.CollectionLog {
	t.Helper()
	entries, err := env.logs.List(1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return entries[0]
}

func TestCollectRankingStoresWorksWithRank(t *testing.T) {
	env := newTestEnv(t)
	env.client.ranking = map[string]*pixiv.WorksPage{
		pixiv.RankingDay: {Works: []pixiv.Work{
			work(101, 1, env.now.Add(-time.Hour)),
			work(102, 2, env.now.Add(-2*time.Hour), "https://img.example/a.jpg", "https://img.example/b.jpg"),
		}},
	}
	env.client.ranking[pixiv.RankingDay].Works[0].Rank = 1
	env.client.ranking[pixiv.RankingDay].Works[1].Rank = 2

	result, err := env.collector.CollectRanking(context.Background(), pixiv.RankingDay)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Collected)

	stored, err := env.artworks.GetByKey(101, 0)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, database.CollectTypeRanking, stored.CollectType)
	require.NotNil(t, stored.Rank)
	assert.Equal(t, 1, *stored.Rank)
	require.NotNil(t, stored.RankDate)

	entry := lastLog(t, env)
	assert.Equal(t, database.LogStatusSuccess, entry.Status)
	assert.Equal(t, 3, entry.ArtworksCount)
}

func TestCollectRankingEmptyBoardFails(t *testing.T) {
	env := newTestEnv(t)
	env.client.ranking = map[string]*pixiv.WorksPage{}

	_, err := env.collector.CollectRanking(context.Background(), pixiv.RankingDay)
	require.Error(t, err)

	entry := lastLog(t, env)
	assert.Equal(t, database.LogStatusFailed, entry.Status)
}

func TestCollectRankingDeduplicatesWithinRun(t *testing.T) {
	env := newTestEnv(t)
	duplicate := work(101, 1, env.now.Add(-time.Hour))
	env.client.ranking = map[string]*pixiv.WorksPage{
		pixiv.RankingDay: {Works: []pixiv.Work{duplicate, duplicate}},
	}

	result, err := env.collector.CollectRanking(context.Background(), pixiv.RankingDay)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Collected)
}

func TestSyncFollowListStopsAtKnownUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.follows.Insert(database.Follow{UserID: 30, UserName: "old"})
	require.NoError(t, err)

	env.client.following = map[string]*pixiv.FollowingPage{
		"": {
			Users: []pixiv.User{
				{ID: 10, Name: "newest"},
				{ID: 20, Name: "newer"},
				{ID: 30, Name: "old"},
				{ID: 40, Name: "should-not-be-reached"},
			},
			NextOffset: "30",
		},
	}

	result, err := env.collector.SyncFollowList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewUsers)

	unreached, err := env.follows.GetByUserID(40)
	require.NoError(t, err)
	assert.Nil(t, unreached)

	created, err := env.follows.GetByUserID(10)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotNil(t, created.FirstCollectDate)
}

func TestBackfillCreatorFreshStopsAtCutoff(t *testing.T) {
	env := newTestEnv(t)
	follow := database.Follow{UserID: 7, UserName: "artist"}
	_, err := env.follows.Insert(follow)
	require.NoError(t, err)

	recent := env.now.AddDate(0, -1, 0)
	older := env.now.AddDate(-1, 0, 0)
	ancient := env.now.AddDate(-3, 0, 0)
	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		7: {
			"": {Works: []pixiv.Work{work(201, 7, recent), work(202, 7, older)}, NextOffset: "30"},
			"30": {Works: []pixiv.Work{work(203, 7, ancient), work(204, 7, ancient.AddDate(-1, 0, 0))}},
		},
	}

	result, err := env.collector.BackfillCreator(context.Background(), follow, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Collected)

	skipped, err := env.artworks.GetByKey(203, 0)
	require.NoError(t, err)
	assert.Nil(t, skipped)

	updated, err := env.follows.GetByUserID(7)
	require.NoError(t, err)
	require.NotNil(t, updated.LastArtworkDate)
	assert.True(t, updated.LastArtworkDate.Equal(recent))
	require.NotNil(t, updated.LastCollectDate)
	require.NotNil(t, updated.FirstCollectDate)
}

func TestBackfillCreatorReanchorsCutoffForInactiveCreator(t *testing.T) {
	env := newTestEnv(t)
	follow := database.Follow{UserID: 8, UserName: "dormant"}
	_, err := env.follows.Insert(follow)
	require.NoError(t, err)

	// Newest work is already older than the naive two-year window; the
	// window re-anchors to it so history is still collected.
	newest := env.now.AddDate(-3, 0, 0)
	within := newest.AddDate(-1, 0, 0)
	beyond := newest.AddDate(-2, -1, 0)
	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		8: {
			"": {Works: []pixiv.Work{work(301, 8, newest), work(302, 8, within), work(303, 8, beyond)}},
		},
	}

	result, err := env.collector.BackfillCreator(context.Background(), follow, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Collected)

	stored, err := env.artworks.GetByKey(302, 0)
	require.NoError(t, err)
	assert.NotNil(t, stored)

	skipped, err := env.artworks.GetByKey(303, 0)
	require.NoError(t, err)
	assert.Nil(t, skipped)
}

func TestBackfillCreatorRefreshStopsAtExistingWork(t *testing.T) {
	env := newTestEnv(t)
	lastCollect := env.now.AddDate(0, -2, 0)
	follow := database.Follow{UserID: 9, UserName: "returning", LastCollectDate: &lastCollect}
	_, err := env.follows.Insert(follow)
	require.NoError(t, err)

	known := work(402, 9, env.now.AddDate(0, -1, 0))
	_, err = env.artworks.InsertPages(workPages(known, database.CollectTypeUserArtworks, nil, nil))
	require.NoError(t, err)

	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		9: {
			"": {Works: []pixiv.Work{
				work(401, 9, env.now.Add(-time.Hour)),
				known,
				work(403, 9, env.now.AddDate(0, -1, -5)),
			}},
		},
	}

	result, err := env.collector.BackfillCreator(context.Background(), follow, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Collected)

	unreached, err := env.artworks.GetByKey(403, 0)
	require.NoError(t, err)
	assert.Nil(t, unreached)
}

func TestBackfillCreatorKeepsPartialProgressOnFetchError(t *testing.T) {
	env := newTestEnv(t)
	follow := database.Follow{UserID: 10, UserName: "flaky"}
	_, err := env.follows.Insert(follow)
	require.NoError(t, err)

	recent := env.now.Add(-time.Hour)
	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		10: {
			"": {Works: []pixiv.Work{work(501, 10, recent), work(502, 10, env.now.AddDate(0, -1, 0))}, NextOffset: "30"},
		},
	}
	env.client.userWorksErr = map[string]error{"30": &pixiv.RemoteError{StatusCode: 500}}
	require.NoError(t, env.settings.SetFloat(settings.KeyErrorDelayOtherMin, 0.01))
	require.NoError(t, env.settings.SetFloat(settings.KeyErrorDelayOtherMax, 0.01))

	result, err := env.collector.BackfillCreator(context.Background(), follow, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Collected)

	updated, err := env.follows.GetByUserID(10)
	require.NoError(t, err)
	require.NotNil(t, updated.LastArtworkDate)
	assert.True(t, updated.LastArtworkDate.Equal(recent))

	// The failed page queued a penalty for the next traversal.
	assert.Greater(t, env.collector.limiter.Penalty(), time.Duration(0))

	entry := lastLog(t, env)
	assert.Equal(t, database.LogStatusSuccess, entry.Status)
	assert.Equal(t, 2, entry.ArtworksCount)
}

func TestSyncFollowWorksKnownCreator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.follows.Insert(database.Follow{UserID: 42, UserName: "stale name"})
	require.NoError(t, err)

	feedWork := work(501, 42, env.now.Add(-time.Hour),
		"https://img.example/501-0.jpg", "https://img.example/501-1.jpg")
	feedWork.User.Name = "fresh name"
	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"": {Works: []pixiv.Work{feedWork}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Collected) // both pages of the feed work
	assert.Zero(t, result.NewUsers)
	assert.Zero(t, result.Backlogged)

	follow, err := env.follows.GetByUserID(42)
	require.NoError(t, err)
	require.NotNil(t, follow)
	assert.Equal(t, "fresh name", follow.UserName)
	require.NotNil(t, follow.LastArtworkDate)
	assert.True(t, follow.LastArtworkDate.Equal(feedWork.CreateDate))
	require.NotNil(t, follow.LastCollectDate)

	entry := lastLog(t, env)
	assert.Equal(t, database.CollectTypeFollowWorks, entry.LogType)
	assert.Equal(t, database.LogStatusSuccess, entry.Status)
	assert.Equal(t, 2, entry.ArtworksCount)
}

func TestSyncFollowWorksNewCreatorGetsBackfilled(t *testing.T) {
	env := newTestEnv(t)

	// A creator never seen before posts a two-page work; their history
	// holds one older work. The nested backfill stores feed pages and
	// history before the feed walk itself inserts, so the feed insert
	// dedups to zero and everything lands under the backlogged count.
	feedWork := work(501, 42, env.now.Add(-time.Hour),
		"https://img.example/501-0.jpg", "https://img.example/501-1.jpg")
	historyWork := work(502, 42, env.now.AddDate(0, -6, 0))

	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"": {Works: []pixiv.Work{feedWork}},
	}
	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		42: {"": {Works: []pixiv.Work{feedWork, historyWork}}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Collected)
	assert.Equal(t, 1, result.NewUsers)
	assert.Equal(t, 3, result.Backlogged)

	follow, err := env.follows.GetByUserID(42)
	require.NoError(t, err)
	require.NotNil(t, follow)
	require.NotNil(t, follow.FirstCollectDate)
	require.NotNil(t, follow.LastArtworkDate)
	assert.True(t, follow.LastArtworkDate.Equal(feedWork.CreateDate))

	history, err := env.artworks.GetByKey(502, 0)
	require.NoError(t, err)
	require.NotNil(t, history)
	assert.Equal(t, database.CollectTypeUserArtworks, history.CollectType)

	entries, err := env.logs.List(10, 0)
	require.NoError(t, err)
	var feedLog *database.CollectionLog
	for i := range entries {
		if entries[i].LogType == database.CollectTypeFollowWorks {
			feedLog = &entries[i]
		}
	}
	require.NotNil(t, feedLog)
	assert.Equal(t, database.LogStatusSuccess, feedLog.Status)
}

func TestSyncFollowWorksWalksAllFeedPages(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.follows.Insert(database.Follow{UserID: 42, UserName: "creator"})
	require.NoError(t, err)

	newest := work(901, 42, env.now.Add(-time.Hour))
	older := work(902, 42, env.now.Add(-2*time.Hour))
	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"":   {Works: []pixiv.Work{newest}, NextOffset: "30"},
		"30": {Works: []pixiv.Work{older}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Collected)
	assert.Zero(t, result.NewUsers)

	for _, id := range []int64{901, 902} {
		stored, err := env.artworks.GetByKey(id, 0)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, database.CollectTypeFollowWorks, stored.CollectType)
	}

	follow, err := env.follows.GetByUserID(42)
	require.NoError(t, err)
	require.NotNil(t, follow.LastArtworkDate)
	assert.True(t, follow.LastArtworkDate.Equal(newest.CreateDate))

	entry := lastLog(t, env)
	assert.Equal(t, database.LogStatusSuccess, entry.Status)
	assert.Equal(t, 2, entry.ArtworksCount)
}

func TestSyncFollowWorksStopsAtFollowProvenance(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.follows.Insert(database.Follow{UserID: 5, UserName: "known"})
	require.NoError(t, err)

	existing := work(601, 5, env.now.AddDate(0, 0, -3))
	_, err = env.artworks.InsertPages(workPages(existing, database.CollectTypeFollowWorks, nil, nil))
	require.NoError(t, err)

	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"": {Works: []pixiv.Work{
			work(600, 5, env.now.Add(-time.Hour)),
			existing,
			work(602, 5, env.now.AddDate(0, 0, -5)),
		}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Collected)

	unreached, err := env.artworks.GetByKey(602, 0)
	require.NoError(t, err)
	assert.Nil(t, unreached)
}

func TestSyncFollowWorksReclassifiesRankingWorks(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.follows.Insert(database.Follow{UserID: 5, UserName: "known"})
	require.NoError(t, err)

	rank := 3
	rankDate := env.now.AddDate(0, 0, -1)
	fromRanking := work(701, 5, env.now.AddDate(0, 0, -2))
	_, err = env.artworks.InsertPages(workPages(fromRanking, database.CollectTypeRanking, &rank, &rankDate))
	require.NoError(t, err)

	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"": {Works: []pixiv.Work{
			fromRanking,
			work(702, 5, env.now.AddDate(0, 0, -4)),
		}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	// The reclassified work is not re-inserted; the walk continues to 702.
	assert.Equal(t, 1, result.Collected)

	reclassified, err := env.artworks.GetByKey(701, 0)
	require.NoError(t, err)
	require.NotNil(t, reclassified)
	assert.Equal(t, database.CollectTypeFollowWorks, reclassified.CollectType)

	// The creator is refreshed from the reclassified work too.
	follow, err := env.follows.GetByUserID(5)
	require.NoError(t, err)
	require.NotNil(t, follow.LastArtworkDate)
	assert.True(t, follow.LastArtworkDate.Equal(fromRanking.CreateDate))
}

func TestSyncFollowWorksRegistersCreatorOfReclassifiedWork(t *testing.T) {
	env := newTestEnv(t)

	// A work collected from a ranking board shows up in the feed, but its
	// creator was never registered. Reclassification alone is not enough:
	// the creator gets registered and backfilled like any other feed find.
	rank := 1
	rankDate := env.now.AddDate(0, 0, -1)
	fromRanking := work(711, 55, env.now.AddDate(0, 0, -2))
	_, err := env.artworks.InsertPages(workPages(fromRanking, database.CollectTypeRanking, &rank, &rankDate))
	require.NoError(t, err)

	history := work(710, 55, env.now.AddDate(0, -6, 0))
	env.client.followedWorks = map[string]*pixiv.WorksPage{
		"": {Works: []pixiv.Work{fromRanking}},
	}
	env.client.userWorks = map[int64]map[string]*pixiv.WorksPage{
		55: {"": {Works: []pixiv.Work{fromRanking, history}}},
	}

	result, err := env.collector.SyncFollowWorks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Collected) // the stored row only changes provenance
	assert.Equal(t, 1, result.NewUsers)
	assert.Equal(t, 1, result.Backlogged) // the history work

	follow, err := env.follows.GetByUserID(55)
	require.NoError(t, err)
	require.NotNil(t, follow)
	require.NotNil(t, follow.LastArtworkDate)
	assert.True(t, follow.LastArtworkDate.Equal(fromRanking.CreateDate))

	reclassified, err := env.artworks.GetByKey(711, 0)
	require.NoError(t, err)
	require.NotNil(t, reclassified)
	assert.Equal(t, database.CollectTypeFollowWorks, reclassified.CollectType)

	stored, err := env.artworks.GetByKey(710, 0)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestRefreshArtworksUpdatesAllPages(t *testing.T) {
	env := newTestEnv(t)

	stale := work(801, 3, env.now.AddDate(0, -3, 0),
		"https://img.example/801-0.jpg", "https://img.example/801-1.jpg")
	_, err := env.artworks.InsertPages(workPages(stale, database.CollectTypeRanking, nil, nil))
	require.NoError(t, err)

	fresh := stale
	fresh.Title = "renamed"
	fresh.TotalBookmarks = 999
	env.client.details = map[int64]*pixiv.WorkDetail{801: {Work: fresh}}

	result, err := env.collector.RefreshArtworks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Invalid)

	pages, err := env.artworks.PagesByIllustID(801)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, page := range pages {
		assert.Equal(t, "renamed", page.Title)
		assert.Equal(t, 999, page.TotalBookmarks)
		assert.NotNil(t, page.LastUpdatedAt)
	}
}

func TestRefreshArtworksMarksMissingWorkInvalid(t *testing.T) {
	env := newTestEnv(t)

	gone := work(802, 3, env.now.AddDate(0, -3, 0))
	_, err := env.artworks.InsertPages(workPages(gone, database.CollectTypeRanking, nil, nil))
	require.NoError(t, err)

	env.client.details = map[int64]*pixiv.WorkDetail{}

	result, err := env.collector.RefreshArtworks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Invalid)

	pages, err := env.artworks.PagesByIllustID(802)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.False(t, pages[0].IsValid)
	assert.Equal(t, "Artwork not found", pages[0].ErrorMessage)
}

func TestRefreshArtworksDeletePolicy(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.settings.SetString(settings.KeyInvalidAction, "delete"))

	gone := work(803, 3, env.now.AddDate(0, -3, 0), "https://img.example/a.jpg", "https://img.example/b.jpg")
	_, err := env.artworks.InsertPages(workPages(gone, database.CollectTypeRanking, nil, nil))
	require.NoError(t, err)

	env.client.details = map[int64]*pixiv.WorkDetail{}

	result, err := env.collector.RefreshArtworks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Invalid)

	pages, err := env.artworks.PagesByIllustID(803)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestRefreshArtworksSkipsFreshRows(t *testing.T) {
	env := newTestEnv(t)

	recent := work(804, 3, env.now.Add(-time.Hour))
	_, err := env.artworks.InsertPages(workPages(recent, database.CollectTypeRanking, nil, nil))
	require.NoError(t, err)

	// Newly inserted rows carry a current last_updated_at and stay out of
	// the stale selection.
	result, err := env.collector.RefreshArtworks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	assert.Zero(t, env.client.calls)
}

func TestCleanupLogsDeletesOldEntries(t *testing.T) {
	env := newTestEnv(t)

	oldID, err := env.logs.Create(database.CollectTypeRanking, "old run")
	require.NoError(t, err)
	require.NoError(t, env.logs.FinalizeSuccess(oldID, "done", 1))
	_, err = env.db.Exec(`UPDATE collection_logs SET created_at = ? WHERE id = ?`,
		env.now.Add(-100*24*time.Hour), oldID)
	require.NoError(t, err)

	recentID, err := env.logs.Create(database.CollectTypeRanking, "recent run")
	require.NoError(t, err)
	require.NoError(t, env.logs.FinalizeSuccess(recentID, "done", 1))

	result, err := env.collector.CleanupLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	deleted, err := env.logs.GetByID(oldID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	kept, err := env.logs.GetByID(recentID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	// The cleanup run finalizes its own log after the delete.
	entry := lastLog(t, env)
	assert.Equal(t, database.CollectTypeCleanupLogs, entry.LogType)
	assert.Equal(t, database.LogStatusSuccess, entry.Status)
	assert.Equal(t, 1, entry.ArtworksCount)
}
