// Package story owns ephemeral story retrieval, upload, and the
// auto-advancing playback session grouped by author.
package story

import (
	"context"
	"io"
	"path"
	"time"

	"meridian/internal/gateway"
	"meridian/internal/models"
	"meridian/internal/observability"

	"github.com/google/uuid"
)

// storyTTL is how long a freshly uploaded story stays eligible.
const storyTTL = 24 * time.Hour

const storyColumns = "id,author_id,media_url,media_kind,created_at,expires_at," +
	"author:profiles(id,user_id,full_name,headline,avatar_url)"

// Service loads, uploads, and deletes stories through the gateway.
type Service struct {
	exec     gateway.Executor
	storage  gateway.Storage
	sessions gateway.SessionProvider
	bucket   string
	clock    Clock
	logger   *observability.SyncLogger
}

// NewService builds a story Service. storage may be the same REST gateway as
// exec.
func NewService(exec gateway.Executor, storage gateway.Storage, sessions gateway.SessionProvider, bucket string, clock Clock) *Service {
	if clock == nil {
		clock = RealClock()
	}
	if sessions == nil {
		sessions = gateway.AnonymousSessions{}
	}
	return &Service{
		exec:     exec,
		storage:  storage,
		sessions: sessions,
		bucket:   bucket,
		clock:    clock,
		logger:   observability.NewSyncLogger("story"),
	}
}

// LoadGroups returns the non-expired stories grouped by author: groups
// ordered newest-first by their latest story, stories within a group ordered
// oldest-first for playback. Expiry is an exclusive bound enforced by the
// query filter.
func (s *Service) LoadGroups(ctx context.Context) ([]models.StoryGroup, error) {
	_, span := observability.TraceSyncOp(ctx, "story", "load_groups")
	defer span.End()

	var stories []models.Story
	err := gateway.From(s.exec, "stories").
		Select(storyColumns).
		Gt("expires_at", gateway.FormatTime(s.clock.Now())).
		Order("created_at", true).
		Get(ctx, &stories)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return GroupByAuthor(stories), nil
}

// GroupByAuthor groups a created_at-descending story list by author,
// preserving the newest-first group order and reversing each group into
// playback (oldest-first) order.
func GroupByAuthor(stories []models.Story) []models.StoryGroup {
	index := make(map[string]int)
	var groups []models.StoryGroup
	for _, st := range stories {
		i, ok := index[st.AuthorID]
		if !ok {
			i = len(groups)
			index[st.AuthorID] = i
			groups = append(groups, models.StoryGroup{
				AuthorID: st.AuthorID,
				Author:   st.Author,
			})
		}
		// Input is newest-first; prepending restores playback order.
		groups[i].Stories = append([]models.Story{st}, groups[i].Stories...)
	}
	return groups
}

// Upload stores the media blob, resolves its public URL, and writes the
// story row. The row is only written after the upload completes.
func (s *Service) Upload(ctx context.Context, filename, contentType string, kind models.MediaKind, r io.Reader) (*models.Story, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.NewUnauthorizedError("sign in to post a story")
	}
	if kind != models.MediaImage && kind != models.MediaVideo {
		return nil, models.NewValidationError("stories accept image or video media only")
	}

	objectPath := session.UserID + "/" + uuid.NewString() + path.Ext(filename)
	if err := s.storage.Upload(ctx, s.bucket, objectPath, contentType, r); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var created models.Story
	if err := gateway.From(s.exec, "stories").Insert(ctx, map[string]string{
		"author_id":  session.UserID,
		"media_url":  s.storage.PublicURL(s.bucket, objectPath),
		"media_kind": string(kind),
		"expires_at": gateway.FormatTime(now.Add(storyTTL)),
	}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete removes the viewer's own story.
func (s *Service) Delete(ctx context.Context, storyID string) error {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return models.NewUnauthorizedError("sign in to delete stories")
	}
	return gateway.From(s.exec, "stories").
		Eq("id", storyID).
		Eq("author_id", session.UserID).
		Delete(ctx)
}

// ViewRecorder returns the fire-and-forget view hook used by playback
// sessions. Views of the viewer's own stories are not recorded; failures are
// logged and otherwise dropped.
func (s *Service) ViewRecorder(viewerID string) func(models.Story) {
	return func(st models.Story) {
		if viewerID == "" || viewerID == st.AuthorID {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gateway.From(s.exec, "story_views").Insert(ctx, map[string]string{
				"story_id":  st.ID,
				"viewer_id": viewerID,
			}, nil); err != nil && !models.IsAborted(err) {
				s.logger.LogError(ctx, err, "record_view")
			}
		}()
	}
}
