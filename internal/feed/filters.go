package feed

import (
	"context"
	"time"

	"meridian/internal/cache"
	"meridian/internal/gateway"
	"meridian/internal/models"

	"github.com/samber/lo"
)

// filterSets are the viewer-relative exclusion sets applied to every feed
// page. Resolved per load through the cache-aside helper; anonymous viewers
// get empty sets.
type filterSets struct {
	HiddenPostIDs    []string `json:"hidden_post_ids"`
	BlockedAuthorIDs []string `json:"blocked_author_ids"`
	SnoozedAuthorIDs []string `json:"snoozed_author_ids"`
}

func (f filterSets) empty() bool {
	return len(f.HiddenPostIDs) == 0 && len(f.BlockedAuthorIDs) == 0 && len(f.SnoozedAuthorIDs) == 0
}

// excludes reports whether the viewer must not see p.
func (f filterSets) excludes(p *models.Post) bool {
	return lo.Contains(f.HiddenPostIDs, p.ID) ||
		lo.Contains(f.BlockedAuthorIDs, p.AuthorID) ||
		lo.Contains(f.SnoozedAuthorIDs, p.AuthorID)
}

// resolveFilterSets loads the viewer's hidden/blocked/snoozed sets.
// Blocked and snoozed profile ids are translated to author ids; snooze
// entries whose window has elapsed are excluded at query time.
func (s *Synchronizer) resolveFilterSets(ctx context.Context, viewerID string, now time.Time) (filterSets, error) {
	var sets filterSets
	if viewerID == "" {
		return sets, nil
	}

	err := s.cache.Aside(ctx, cache.FilterSetKey(viewerID), &sets, cache.FilterSetTTL, func() error {
		var hidden []models.HiddenPost
		if err := gateway.From(s.exec, "hidden_posts").
			Select("id,user_id,post_id").
			Eq("user_id", viewerID).
			Get(ctx, &hidden); err != nil {
			return err
		}

		var blocked []models.BlockedProfile
		if err := gateway.From(s.exec, "blocked_profiles").
			Select("id,user_id,blocked_profile_id").
			Eq("user_id", viewerID).
			Get(ctx, &blocked); err != nil {
			return err
		}

		var snoozed []models.SnoozedProfile
		if err := gateway.From(s.exec, "snoozed_profiles").
			Select("id,user_id,snoozed_profile_id,snoozed_until").
			Eq("user_id", viewerID).
			Gt("snoozed_until", gateway.FormatTime(now)).
			Get(ctx, &snoozed); err != nil {
			return err
		}

		sets = filterSets{
			HiddenPostIDs: lo.Map(hidden, func(h models.HiddenPost, _ int) string {
				return h.PostID
			}),
			BlockedAuthorIDs: lo.Map(blocked, func(b models.BlockedProfile, _ int) string {
				return b.BlockedProfileID
			}),
			SnoozedAuthorIDs: lo.Map(snoozed, func(p models.SnoozedProfile, _ int) string {
				return p.SnoozedProfileID
			}),
		}
		return nil
	})
	if err != nil {
		return filterSets{}, err
	}
	return sets, nil
}
