package story

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"meridian/internal/gateway"
	"meridian/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	QueryFn  func(ctx context.Context, q gateway.Query, dest any) error
	InsertFn func(ctx context.Context, table string, row any, returned any) error
	DeleteFn func(ctx context.Context, table string, filters []gateway.Filter) error
}

func (s *stubExecutor) ExecQuery(ctx context.Context, q gateway.Query, dest any) error {
	if s.QueryFn == nil {
		return fmt.Errorf("unexpected query on %s", q.Table)
	}
	return s.QueryFn(ctx, q, dest)
}

func (s *stubExecutor) ExecInsert(ctx context.Context, table string, row any, returned any) error {
	if s.InsertFn == nil {
		return fmt.Errorf("unexpected insert into %s", table)
	}
	return s.InsertFn(ctx, table, row, returned)
}

func (s *stubExecutor) ExecUpdate(ctx context.Context, table string, patch any, filters []gateway.Filter) error {
	return fmt.Errorf("unexpected update on %s", table)
}

func (s *stubExecutor) ExecDelete(ctx context.Context, table string, filters []gateway.Filter) error {
	if s.DeleteFn == nil {
		return fmt.Errorf("unexpected delete on %s", table)
	}
	return s.DeleteFn(ctx, table, filters)
}

type stubStorage struct {
	uploads []string
	err     error
}

func (s *stubStorage) Upload(ctx context.Context, bucket, path, contentType string, r io.Reader) error {
	if s.err != nil {
		return s.err
	}
	s.uploads = append(s.uploads, bucket+"/"+path)
	return nil
}

func (s *stubStorage) PublicURL(bucket, path string) string {
	return "https://cdn.example.com/" + bucket + "/" + path
}

func fill(dest any, rows any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                   { return c.now }
func (c fixedClock) NewTicker(d time.Duration) Ticker { return realClock{}.NewTicker(d) }

func authorSessions(userID string) gateway.SessionProvider {
	return gateway.StaticSessions{S: &gateway.Session{UserID: userID, AccessToken: "t"}}
}

func TestGroupByAuthor(t *testing.T) {
	t.Parallel()
	// Input arrives newest-first from the gateway.
	stories := []models.Story{
		{ID: "s5", AuthorID: "bob"},
		{ID: "s4", AuthorID: "alice"},
		{ID: "s3", AuthorID: "bob"},
		{ID: "s2", AuthorID: "alice"},
		{ID: "s1", AuthorID: "alice"},
	}

	groups := GroupByAuthor(stories)
	require.Len(t, groups, 2)

	// Group order follows the newest story per author.
	assert.Equal(t, "bob", groups[0].AuthorID)
	assert.Equal(t, "alice", groups[1].AuthorID)

	// Stories within a group play oldest first.
	ids := func(g models.StoryGroup) []string {
		out := make([]string, len(g.Stories))
		for i, st := range g.Stories {
			out[i] = st.ID
		}
		return out
	}
	assert.Equal(t, []string{"s3", "s5"}, ids(groups[0]))
	assert.Equal(t, []string{"s1", "s2", "s4"}, ids(groups[1]))
}

func TestGroupByAuthor_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, GroupByAuthor(nil))
}

func TestLoadGroups_FiltersExpiredAtQueryTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var captured gateway.Query
	exec := &stubExecutor{QueryFn: func(ctx context.Context, q gateway.Query, dest any) error {
		captured = q
		return fill(dest, []models.Story{{ID: "s1", AuthorID: "a1"}})
	}}

	svc := NewService(exec, &stubStorage{}, nil, "media", fixedClock{now: now})
	groups, err := svc.LoadGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	assert.Equal(t, "stories", captured.Table)
	require.Len(t, captured.Filters, 1)
	assert.Equal(t, gateway.Filter{Column: "expires_at", Op: gateway.OpGt, Value: "2025-06-01T12:00:00Z"}, captured.Filters[0])
	require.Len(t, captured.Order, 1)
	assert.Equal(t, gateway.OrderBy{Column: "created_at", Descending: true}, captured.Order[0])
}

func TestUpload_StoresBlobThenWritesRow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	storage := &stubStorage{}

	var insertedRow map[string]string
	exec := &stubExecutor{InsertFn: func(ctx context.Context, table string, row any, returned any) error {
		assert.Equal(t, "stories", table)
		require.NotEmpty(t, storage.uploads, "the media upload must complete before the row exists")
		insertedRow = row.(map[string]string)
		return fill(returned, models.Story{ID: "st-1", AuthorID: "u1"})
	}}

	svc := NewService(exec, storage, authorSessions("u1"), "media", fixedClock{now: now})
	created, err := svc.Upload(context.Background(), "clip.mp4", "video/mp4", models.MediaVideo, strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "st-1", created.ID)

	require.Len(t, storage.uploads, 1)
	assert.True(t, strings.HasPrefix(storage.uploads[0], "media/u1/"))
	assert.True(t, strings.HasSuffix(storage.uploads[0], ".mp4"))

	require.NotNil(t, insertedRow)
	assert.Equal(t, "u1", insertedRow["author_id"])
	assert.Equal(t, "video", insertedRow["media_kind"])
	assert.Equal(t, "2025-06-02T12:00:00Z", insertedRow["expires_at"], "stories live 24 hours")
	assert.True(t, strings.HasPrefix(insertedRow["media_url"], "https://cdn.example.com/media/u1/"))
}

func TestUpload_RejectsUnsupportedKind(t *testing.T) {
	svc := NewService(&stubExecutor{}, &stubStorage{}, authorSessions("u1"), "media", nil)
	_, err := svc.Upload(context.Background(), "song.mp3", "audio/mpeg", models.MediaKind("audio"), strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestUpload_RequiresSession(t *testing.T) {
	svc := NewService(&stubExecutor{}, &stubStorage{}, nil, "media", nil)
	_, err := svc.Upload(context.Background(), "a.jpg", "image/jpeg", models.MediaImage, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, models.IsUnauthorized(err))
}

func TestUpload_StorageFailureSkipsRow(t *testing.T) {
	storage := &stubStorage{err: models.NewStorageError("bucket full", nil)}
	exec := &stubExecutor{} // any insert fails the test

	svc := NewService(exec, storage, authorSessions("u1"), "media", nil)
	_, err := svc.Upload(context.Background(), "a.jpg", "image/jpeg", models.MediaImage, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, models.IsStorage(err))
}

func TestDelete_ScopedToOwnStories(t *testing.T) {
	var captured []gateway.Filter
	exec := &stubExecutor{DeleteFn: func(ctx context.Context, table string, filters []gateway.Filter) error {
		assert.Equal(t, "stories", table)
		captured = filters
		return nil
	}}

	svc := NewService(exec, &stubStorage{}, authorSessions("u1"), "media", nil)
	require.NoError(t, svc.Delete(context.Background(), "st-9"))

	assert.Equal(t, []gateway.Filter{
		{Column: "id", Op: gateway.OpEq, Value: "st-9"},
		{Column: "author_id", Op: gateway.OpEq, Value: "u1"},
	}, captured)
}

func TestViewRecorder(t *testing.T) {
	var mu sync.Mutex
	var recorded []map[string]string
	exec := &stubExecutor{InsertFn: func(ctx context.Context, table string, row any, returned any) error {
		assert.Equal(t, "story_views", table)
		mu.Lock()
		recorded = append(recorded, row.(map[string]string))
		mu.Unlock()
		return nil
	}}

	svc := NewService(exec, &stubStorage{}, nil, "media", nil)
	record := svc.ViewRecorder("viewer")

	record(models.Story{ID: "st-1", AuthorID: gofakeit.UUID()})
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recorded) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, "st-1", recorded[0]["story_id"])
	assert.Equal(t, "viewer", recorded[0]["viewer_id"])
	mu.Unlock()

	// Viewing one's own story records nothing.
	record(models.Story{ID: "st-2", AuthorID: "viewer"})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, recorded, 1)
	mu.Unlock()

	// Anonymous viewers record nothing.
	anon := svc.ViewRecorder("")
	anon(models.Story{ID: "st-3", AuthorID: gofakeit.UUID()})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, recorded, 1)
	mu.Unlock()
}
