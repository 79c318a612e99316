package models

import "time"

// Story is a time-boxed ephemeral media post. Eligible for display only
// while now < ExpiresAt; expiry is enforced by query filter, not by active
// client-side eviction.
type Story struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    *Profile  `json:"author,omitempty"`
	MediaURL  string    `json:"media_url"`
	MediaKind MediaKind `json:"media_kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the story is no longer eligible at now. The expiry
// is an exclusive upper bound: a story expiring exactly at now is excluded.
func (s *Story) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StoryGroup is one author's ordered sequence of non-expired stories. Groups
// are listed newest-first, but stories within a group play oldest-to-newest.
type StoryGroup struct {
	AuthorID string   `json:"author_id"`
	Author   *Profile `json:"author,omitempty"`
	Stories  []Story  `json:"stories"`
}

// StoryView records that a viewer opened a story. Written fire-and-forget.
type StoryView struct {
	ID       string    `json:"id"`
	StoryID  string    `json:"story_id"`
	ViewerID string    `json:"viewer_id"`
	ViewedAt time.Time `json:"viewed_at"`
}
