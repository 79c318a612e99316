package story

import (
	"sync"
	"time"

	"meridian/internal/models"
)

// PlaybackState is the session's state.
type PlaybackState string

const (
	StateClosed  PlaybackState = "closed"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

const (
	// DefaultDuration is how long one story plays.
	DefaultDuration = 5 * time.Second
	// DefaultTick is the progress sampling interval.
	DefaultTick = 50 * time.Millisecond

	// swipeHorizontalThreshold is the displacement past which a horizontal
	// swipe navigates.
	swipeHorizontalThreshold = 50.0
	// swipeVerticalThreshold is the displacement past which a downward swipe
	// closes the session.
	swipeVerticalThreshold = 60.0
)

// SessionOptions configures a playback session.
type SessionOptions struct {
	Groups   []models.StoryGroup
	Duration time.Duration
	Tick     time.Duration
	Clock    Clock
	// OnView is invoked once per story entered; nil disables view recording.
	OnView func(models.Story)
}

// Session is the playback state machine for one open story viewer. Progress
// derives from accumulated elapsed time, so resuming from a pause continues
// at the frozen position rather than restarting.
//
// The internal ticker is cancelled synchronously on close, story change, and
// pause transitions; an orphaned tick can never advance a closed session.
type Session struct {
	groups   []models.StoryGroup
	duration time.Duration
	tick     time.Duration
	clock    Clock
	onView   func(models.Story)

	mu          sync.Mutex
	state       PlaybackState
	groupIdx    int
	storyIdx    int
	elapsed     time.Duration
	manualPause bool
	forcedPause bool
	stop        chan struct{}

	// Local-only engagement state; nothing here is persisted.
	likes   map[string]bool
	replies map[string]string
}

// NewSession builds a session over the given groups in the closed state.
func NewSession(opts SessionOptions) *Session {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Session{
		groups:   opts.Groups,
		duration: opts.Duration,
		tick:     opts.Tick,
		clock:    opts.Clock,
		onView:   opts.OnView,
		state:    StateClosed,
		likes:    make(map[string]bool),
		replies:  make(map[string]string),
	}
}

// State returns the current playback state.
func (s *Session) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Position returns the current group and story indices.
func (s *Session) Position() (group, story int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupIdx, s.storyIdx
}

// Progress returns playback progress in percent, 0..100.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := float64(s.elapsed) / float64(s.duration) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Current returns the story under the cursor, or nil when closed.
func (s *Session) Current() *models.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *models.Story {
	if s.state == StateClosed || s.groupIdx >= len(s.groups) {
		return nil
	}
	g := s.groups[s.groupIdx]
	if s.storyIdx >= len(g.Stories) {
		return nil
	}
	st := g.Stories[s.storyIdx]
	return &st
}

// Open starts playback at the first story of the selected group.
func (s *Session) Open(groupIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if groupIdx < 0 || groupIdx >= len(s.groups) || len(s.groups[groupIdx].Stories) == 0 {
		return
	}
	s.groupIdx = groupIdx
	s.storyIdx = 0
	s.elapsed = 0
	s.manualPause = false
	s.forcedPause = false
	s.state = StatePlaying
	s.restartTickerLocked()
	s.fireViewLocked()
}

// Close ends the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	s.state = StateClosed
	s.elapsed = 0
	s.stopTickerLocked()
}

// Next advances to the next story in the group, or closes the session when
// the group is exhausted. Manual pause is cleared so playback auto-resumes.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocked()
}

func (s *Session) nextLocked() {
	if s.state == StateClosed {
		return
	}
	g := s.groups[s.groupIdx]
	if s.storyIdx+1 < len(g.Stories) {
		s.storyIdx++
		s.elapsed = 0
		s.manualPause = false
		s.forcedPause = false
		s.state = StatePlaying
		s.restartTickerLocked()
		s.fireViewLocked()
		return
	}
	s.closeLocked()
}

// Previous steps back within the group; at the first story it is a no-op and
// never crosses into another group.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.storyIdx == 0 {
		return
	}
	s.storyIdx--
	s.elapsed = 0
	s.manualPause = false
	s.forcedPause = false
	s.state = StatePlaying
	s.restartTickerLocked()
}

// TogglePause flips playing/paused without changing position or progress.
func (s *Session) TogglePause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying:
		s.manualPause = true
		s.state = StatePaused
		s.stopTickerLocked()
	case StatePaused:
		s.manualPause = false
		if !s.forcedPause {
			s.state = StatePlaying
			s.restartTickerLocked()
		}
	}
}

// ForcePause pauses playback as a side effect of opening the reply input or
// an edit dialog, independent of the tap/swipe handlers.
func (s *Session) ForcePause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		s.forcedPause = s.state == StatePaused || s.forcedPause
		return
	}
	s.forcedPause = true
	s.state = StatePaused
	s.stopTickerLocked()
}

// ClearForcedPause lifts the forced pause; playback resumes unless the
// viewer also paused manually.
func (s *Session) ClearForcedPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.forcedPause {
		return
	}
	s.forcedPause = false
	if s.state == StatePaused && !s.manualPause {
		s.state = StatePlaying
		s.restartTickerLocked()
	}
}

// HandleTap interprets a tap at x within a viewport of the given width:
// side zones navigate, the center zone toggles pause.
func (s *Session) HandleTap(x, width float64) {
	if width <= 0 {
		return
	}
	switch {
	case x < width/3:
		s.Previous()
	case x > 2*width/3:
		s.Next()
	default:
		s.TogglePause()
	}
}

// HandleSwipe interprets a swipe displacement. A downward-dominant swipe
// past the vertical threshold closes the session; a horizontally dominant
// swipe past 50 units navigates (leftward is next, rightward is previous).
func (s *Session) HandleSwipe(dx, dy float64) {
	absX, absY := abs(dx), abs(dy)
	if dy > swipeVerticalThreshold && absY > absX {
		s.Close()
		return
	}
	if absX > swipeHorizontalThreshold && absX >= absY {
		if dx < 0 {
			s.Next()
		} else {
			s.Previous()
		}
	}
}

// ToggleLike flips the viewer's local like on the current story. Engagement
// is not persisted; it lives only for the session.
func (s *Session) ToggleLike() {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.currentLocked()
	if st == nil {
		return
	}
	s.likes[st.ID] = !s.likes[st.ID]
}

// Liked reports the local like flag for the current story.
func (s *Session) Liked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.currentLocked()
	if st == nil {
		return false
	}
	return s.likes[st.ID]
}

// SetReply stores a local draft reply to the current story.
func (s *Session) SetReply(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.currentLocked()
	if st == nil {
		return
	}
	s.replies[st.ID] = text
}

// Reply returns the local draft reply for the current story.
func (s *Session) Reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.currentLocked()
	if st == nil {
		return ""
	}
	return s.replies[st.ID]
}

// restartTickerLocked replaces the running ticker with a fresh one. The old
// ticker's stop channel is closed first, so a tick from the previous story
// or pause epoch can never apply.
func (s *Session) restartTickerLocked() {
	s.stopTickerLocked()
	stop := make(chan struct{})
	s.stop = stop
	ticker := s.clock.NewTicker(s.tick)
	go s.run(stop, ticker)
}

func (s *Session) stopTickerLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Session) run(stop chan struct{}, ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !s.applyTick(stop) {
				return
			}
		}
	}
}

// applyTick advances progress by one interval. It re-checks the stop channel
// identity under the lock so a tick racing a transition is dropped.
func (s *Session) applyTick(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != stop || s.state != StatePlaying {
		return false
	}
	s.elapsed += s.tick
	if s.elapsed >= s.duration {
		s.nextLocked()
		return false
	}
	return true
}

func (s *Session) fireViewLocked() {
	if s.onView == nil {
		return
	}
	if st := s.currentLocked(); st != nil {
		s.onView(*st)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
