package models

import "time"

// Profile is the public profile row referenced by posts, stories, and chat.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Headline  string    `json:"headline,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HiddenPost marks a post the viewer chose not to see. Viewer-relative; not
// stored on the post itself.
type HiddenPost struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// BlockedProfile marks a profile whose posts the viewer never sees.
type BlockedProfile struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	BlockedProfileID string `json:"blocked_profile_id"`
}

// SnoozedProfile mutes a profile until SnoozedUntil. Entries whose window has
// elapsed are excluded at query time, not actively evicted.
type SnoozedProfile struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	SnoozedProfileID string    `json:"snoozed_profile_id"`
	SnoozedUntil     time.Time `json:"snoozed_until"`
}

// Active reports whether the snooze window still covers now.
func (s *SnoozedProfile) Active(now time.Time) bool {
	return now.Before(s.SnoozedUntil)
}
