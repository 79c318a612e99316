// Package models contains the typed row shapes mirrored from the hosted
// backend. The client owns no durable storage; every entity here is a remote
// row decoded at the gateway boundary.
package models

import "time"

// PostKind discriminates the shape of a post row.
type PostKind string

const (
	PostKindText   PostKind = "text"
	PostKindMedia  PostKind = "media"
	PostKindRepost PostKind = "repost"
)

// MediaKind is the kind of an attached media object.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Post represents a post in the feed. Content is immutable once posted; the
// only mutations are like-set membership and deletion.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    *Profile  `json:"author,omitempty"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	Kind      PostKind  `json:"kind"`
	// OriginalPostID links a repost to its root original. It always points at
	// the root, never at an intermediate repost.
	OriginalPostID *string       `json:"original_post_id,omitempty"`
	Original       *RepostSource `json:"original,omitempty"`
	Likes          []Like        `json:"likes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// RepostSource is the denormalized snapshot of a repost's root post, read
// alongside via the embedded join. Nil when the join is unavailable.
type RepostSource struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    *Profile  `json:"author,omitempty"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RepostTargetID returns the post id a new repost of p must reference: the
// root original for reposts, p itself otherwise. This is what prevents
// repost chains from ever materializing.
func (p *Post) RepostTargetID() string {
	if p.Kind == PostKindRepost && p.OriginalPostID != nil && *p.OriginalPostID != "" {
		return *p.OriginalPostID
	}
	return p.ID
}

// LikesCount returns the size of the like-set.
func (p *Post) LikesCount() int {
	return len(p.Likes)
}

// LikedBy reports whether userID is a member of the like-set.
func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// Like represents a user's like on a post.
// The combination of UserID and PostID must be unique.
type Like struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment represents a comment on a post. Append-only from the client's
// perspective, ordered by creation time ascending.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Author    *Profile  `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
