// Package feed owns paginated post retrieval for the global and per-author
// feeds: visibility filtering, the repost-join fallback for older backend
// schemas, and optimistic like mutation with reload-on-failure
// reconciliation.
package feed

import (
	"context"
	"sync"
	"time"

	"meridian/internal/cache"
	"meridian/internal/gateway"
	"meridian/internal/models"
	"meridian/internal/observability"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// State is the synchronizer's load state.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateLoadingMore State = "loading_more"
	StateReady       State = "ready"
	StateError       State = "error"
)

// Notifier receives dismissible user-facing notices. Aborted operations
// never reach it.
type Notifier interface {
	Notify(message string)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}

const (
	postColumns = "id,author_id,content,media_url,media_kind,kind,original_post_id,created_at," +
		"author:profiles(id,user_id,full_name,headline,avatar_url)," +
		"likes(id,post_id,user_id,created_at)"
	postColumnsWithOriginal = postColumns +
		",original:posts!original_post_id(id,author_id,content,media_url,media_kind,created_at," +
		"author:profiles(id,user_id,full_name,headline,avatar_url))"

	fallbackAdvisory = "Reposts are unavailable until the backend schema is upgraded"
)

// Options configures a Synchronizer.
type Options struct {
	Executor gateway.Executor
	Sessions gateway.SessionProvider
	Cache    *cache.Cache
	Notifier Notifier
	PageSize int
	// AuthorID scopes the feed to a single author; empty means the global
	// feed.
	AuthorID string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Synchronizer produces a correctly-ordered, correctly-filtered,
// incrementally-loadable sequence of posts. All methods are safe for
// concurrent use; a later load always wins over a slower earlier one.
type Synchronizer struct {
	exec     gateway.Executor
	sessions gateway.SessionProvider
	cache    *cache.Cache
	notifier Notifier
	pageSize int
	authorID string
	now      func() time.Time
	logger   *observability.SyncLogger

	mu            sync.Mutex
	state         State
	posts         []*models.Post
	hasMore       bool
	loadErr       error
	gen           uint64
	joinBroken    bool
	advisoryShown bool
}

// New builds a Synchronizer from opts.
func New(opts Options) *Synchronizer {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Sessions == nil {
		opts.Sessions = gateway.AnonymousSessions{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.Disabled()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		exec:     opts.Executor,
		sessions: opts.Sessions,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		pageSize: opts.PageSize,
		authorID: opts.AuthorID,
		now:      opts.Now,
		logger:   observability.NewSyncLogger("feed"),
		state:    StateIdle,
	}
}

// Posts returns a snapshot of the visible post list.
func (s *Synchronizer) Posts() []*models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// State returns the current load state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasMore reports whether another page may exist: true iff the last fetched
// page held exactly the configured page size of raw rows.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Err returns the retryable page-zero error, if the synchronizer is in the
// error state.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Load fetches the given zero-based page. Page zero with refresh replaces
// the visible list; later pages append. A page-zero failure enters the error
// state; later-page failures only raise a transient notice and preserve
// visible content. Aborted loads touch nothing.
func (s *Synchronizer) Load(ctx context.Context, page int, refresh bool) error {
	_, span := observability.TraceSyncOp(ctx, "feed", "load")
	defer span.End()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if page == 0 {
		s.state = StateLoading
	} else {
		s.state = StateLoadingMore
	}
	s.mu.Unlock()

	viewerID := s.viewerID(ctx)
	now := s.now()

	sets, err := s.resolveFilterSets(ctx, viewerID, now)
	if err != nil {
		span.RecordError(err)
		return s.failLoad(ctx, gen, page, err)
	}

	raw, usedFallback, err := s.fetchPage(ctx, page)
	if err != nil {
		span.RecordError(err)
		return s.failLoad(ctx, gen, page, err)
	}

	rawCount := len(raw)
	if usedFallback {
		// Without the repost join a repost row cannot render its original.
		// Dropped after the page-size accounting, like any other
		// client-side filter.
		raw = lo.Filter(raw, func(p *models.Post, _ int) bool {
			return p.Kind != models.PostKindRepost
		})
	}
	visible := raw
	if !sets.empty() {
		visible = lo.Filter(raw, func(p *models.Post, _ int) bool {
			return !sets.excludes(p)
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// A newer load superseded this one; its response is not
		// authoritative.
		return models.NewAbortedError(nil)
	}

	if page == 0 || refresh {
		s.posts = visible
	} else {
		s.posts = append(s.posts, visible...)
	}
	s.hasMore = rawCount == s.pageSize
	s.state = StateReady
	s.loadErr = nil

	if usedFallback && page == 0 && !s.advisoryShown {
		s.advisoryShown = true
		s.notifier.Notify(fallbackAdvisory)
	}

	s.logger.LogEvent(ctx, "page_loaded", map[string]interface{}{
		"page":     page,
		"raw":      rawCount,
		"visible":  len(visible),
		"has_more": s.hasMore,
		"fallback": usedFallback,
	})
	return nil
}

// fetchPage issues the page query, falling back to the join-free variant on
// a schema-mismatch condition.
func (s *Synchronizer) fetchPage(ctx context.Context, page int) ([]*models.Post, bool, error) {
	from := page * s.pageSize
	to := from + s.pageSize - 1

	if !s.joinless() {
		var posts []*models.Post
		err := s.pageQuery(postColumnsWithOriginal, from, to).Get(ctx, &posts)
		if err == nil {
			return posts, false, nil
		}
		if !models.IsSchemaMismatch(err) {
			return nil, false, err
		}
		s.mu.Lock()
		s.joinBroken = true
		s.mu.Unlock()
		observability.FeedFallbacks.Inc()
	}

	var posts []*models.Post
	if err := s.pageQuery(postColumns, from, to).Get(ctx, &posts); err != nil {
		return nil, true, err
	}
	return posts, true, nil
}

func (s *Synchronizer) pageQuery(columns string, from, to int) *gateway.Builder {
	b := gateway.From(s.exec, "posts").
		Select(columns).
		Order("created_at", true).
		Order("id", true). // stable tie-break within one query
		Range(from, to)
	if s.authorID != "" {
		b = b.Eq("author_id", s.authorID)
	}
	return b
}

func (s *Synchronizer) joinless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinBroken
}

// failLoad applies the error policy: aborts are swallowed whole; page-zero
// failures enter the retryable error state; later pages keep content and
// notify.
func (s *Synchronizer) failLoad(ctx context.Context, gen uint64, page int, err error) error {
	if models.IsAborted(err) {
		return err
	}

	s.mu.Lock()
	stale := gen != s.gen
	if !stale {
		if page == 0 {
			s.state = StateError
			s.loadErr = err
			s.posts = nil
		} else {
			s.state = StateReady
		}
	}
	s.mu.Unlock()

	if stale {
		return models.NewAbortedError(err)
	}

	s.logger.LogError(ctx, err, "load")
	if page > 0 {
		s.notifier.Notify(err.Error())
	}
	return err
}

// ToggleLike flips the viewer's like on a post: the local like-set mutates
// immediately, then the remote relation is updated. A failed remote mutation
// is corrected by silently reloading page zero rather than computing an
// inverse patch.
func (s *Synchronizer) ToggleLike(ctx context.Context, postID string, next bool) error {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return models.NewUnauthorizedError("sign in to react to posts")
	}
	viewerID := session.UserID

	s.mu.Lock()
	post := s.findLocked(postID)
	if post == nil {
		s.mu.Unlock()
		return models.NewNotFoundError("post", postID)
	}
	if next && !post.LikedBy(viewerID) {
		post.Likes = append(post.Likes, models.Like{
			ID:        uuid.NewString(),
			PostID:    postID,
			UserID:    viewerID,
			CreatedAt: s.now(),
		})
	} else if !next {
		post.Likes = lo.Filter(post.Likes, func(l models.Like, _ int) bool {
			return l.UserID != viewerID
		})
	}
	s.mu.Unlock()

	if next {
		err = gateway.From(s.exec, "likes").Insert(ctx, map[string]string{
			"post_id": postID,
			"user_id": viewerID,
		}, nil)
	} else {
		err = gateway.From(s.exec, "likes").
			Eq("post_id", postID).
			Eq("user_id", viewerID).
			Delete(ctx)
	}
	if err != nil {
		if models.IsAborted(err) {
			return err
		}
		// Reconcile via re-fetch: the server is the source of truth.
		s.logger.LogError(ctx, err, "toggle_like")
		_ = s.Load(ctx, 0, true)
		return nil
	}
	return nil
}

// Hide removes the post locally, records the hidden mark remotely, and
// triggers a full reload to pull in replacement content.
func (s *Synchronizer) Hide(ctx context.Context, postID string) error {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return models.NewUnauthorizedError("sign in to hide posts")
	}

	s.removeLocal(postID)

	if err := gateway.From(s.exec, "hidden_posts").Insert(ctx, map[string]string{
		"user_id": session.UserID,
		"post_id": postID,
	}, nil); err != nil && !models.IsAborted(err) {
		s.logger.LogError(ctx, err, "hide")
	}
	s.cache.Invalidate(ctx, cache.FilterSetKey(session.UserID))

	return s.Load(ctx, 0, true)
}

// Delete removes the viewer's own post remotely and locally. Unlike Hide it
// does not reload.
func (s *Synchronizer) Delete(ctx context.Context, postID string) error {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return models.NewUnauthorizedError("sign in to delete posts")
	}

	if err := gateway.From(s.exec, "posts").
		Eq("id", postID).
		Eq("author_id", session.UserID).
		Delete(ctx); err != nil {
		return err
	}

	s.removeLocal(postID)
	return nil
}

// Repost creates a repost of the given post. Reposting a repost rewrites the
// parent reference to the root original, so repost chains never materialize.
func (s *Synchronizer) Repost(ctx context.Context, postID, commentary string) (*models.Post, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.NewUnauthorizedError("sign in to repost")
	}

	target, err := s.repostTarget(ctx, postID)
	if err != nil {
		return nil, err
	}

	var created models.Post
	if err := gateway.From(s.exec, "posts").Insert(ctx, map[string]string{
		"author_id":        session.UserID,
		"content":          commentary,
		"kind":             string(models.PostKindRepost),
		"original_post_id": target,
	}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// repostTarget resolves the root original id for postID, consulting the
// local list first and falling back to a single-row fetch.
func (s *Synchronizer) repostTarget(ctx context.Context, postID string) (string, error) {
	s.mu.Lock()
	post := s.findLocked(postID)
	s.mu.Unlock()
	if post != nil {
		return post.RepostTargetID(), nil
	}

	var rows []*models.Post
	if err := gateway.From(s.exec, "posts").
		Select("id,author_id,kind,original_post_id,created_at").
		Eq("id", postID).
		Limit(1).
		Get(ctx, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", models.NewNotFoundError("post", postID)
	}
	return rows[0].RepostTargetID(), nil
}

// Comments loads a post's comments ordered by creation time ascending.
func (s *Synchronizer) Comments(ctx context.Context, postID string) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := gateway.From(s.exec, "comments").
		Select("id,post_id,author_id,content,created_at,author:profiles(id,user_id,full_name,headline,avatar_url)").
		Eq("post_id", postID).
		Order("created_at", false).
		Get(ctx, &comments)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Synchronizer) viewerID(ctx context.Context) string {
	session, err := s.sessions.Session(ctx)
	if err != nil || session == nil {
		return ""
	}
	return session.UserID
}

func (s *Synchronizer) findLocked(postID string) *models.Post {
	for _, p := range s.posts {
		if p.ID == postID {
			return p
		}
	}
	return nil
}

func (s *Synchronizer) removeLocal(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = lo.Filter(s.posts, func(p *models.Post, _ int) bool {
		return p.ID != postID
	})
}
