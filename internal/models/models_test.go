package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRepostTargetID(t *testing.T) {
	t.Parallel()
	rootID := "root-1"

	tests := []struct {
		name     string
		post     Post
		expected string
	}{
		{
			name:     "plain post targets itself",
			post:     Post{ID: "p1", Kind: PostKindText},
			expected: "p1",
		},
		{
			name:     "media post targets itself",
			post:     Post{ID: "p2", Kind: PostKindMedia},
			expected: "p2",
		},
		{
			name:     "repost targets its root original",
			post:     Post{ID: "p3", Kind: PostKindRepost, OriginalPostID: &rootID},
			expected: "root-1",
		},
		{
			name:     "repost with missing link falls back to itself",
			post:     Post{ID: "p4", Kind: PostKindRepost},
			expected: "p4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.post.RepostTargetID())
		})
	}
}

func TestPostLikedBy(t *testing.T) {
	t.Parallel()
	p := Post{Likes: []Like{{UserID: "u1"}, {UserID: "u2"}}}
	assert.True(t, p.LikedBy("u1"))
	assert.False(t, p.LikedBy("u3"))
	assert.Equal(t, 2, p.LikesCount())
}

func TestStoryExpired_ExclusiveBound(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := Story{ExpiresAt: now.Add(time.Nanosecond)}
	assert.False(t, fresh.Expired(now))

	exact := Story{ExpiresAt: now}
	assert.True(t, exact.Expired(now), "a story expiring exactly now is excluded")

	stale := Story{ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, stale.Expired(now))
}

func TestSnoozedProfileActive(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	active := SnoozedProfile{SnoozedUntil: now.Add(time.Hour)}
	assert.True(t, active.Active(now))

	lapsed := SnoozedProfile{SnoozedUntil: now}
	assert.False(t, lapsed.Active(now))
}

func TestConversationHasAndPeer(t *testing.T) {
	t.Parallel()
	c := Conversation{ParticipantOne: "a", ParticipantTwo: "b"}

	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.False(t, c.Has("c"))

	assert.Equal(t, "b", c.Peer("a"))
	assert.Equal(t, "a", c.Peer("b"))
	assert.Equal(t, "", c.Peer("c"))
}

func TestValidMessageKind(t *testing.T) {
	t.Parallel()
	for _, k := range []MessageKind{MessageText, MessageImage, MessageVideo, MessageDocument, MessageAudio} {
		assert.True(t, ValidMessageKind(k))
	}
	assert.False(t, ValidMessageKind("sticker"))
}

func TestAppError_CodesAndWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewTransientError("feed load failed", cause)
	assert.Equal(t, CodeTransient, ErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "feed load failed")

	wrapped := fmt.Errorf("loading page: %w", err)
	assert.Equal(t, CodeTransient, ErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, CodeTransient))
}

func TestAppError_Helpers(t *testing.T) {
	t.Parallel()
	assert.True(t, IsValidation(NewValidationError("bad input")))
	assert.True(t, IsUnauthorized(NewUnauthorizedError("sign in")))
	assert.True(t, IsAborted(NewAbortedError(nil)))
	assert.True(t, IsSchemaMismatch(NewSchemaMismatchError("posts", nil)))
	assert.True(t, IsStorage(NewStorageError("upload failed", nil)))

	assert.False(t, IsAborted(NewValidationError("x")))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("untyped")))
}
