package sequence

import (
	"math"
	"sync"
	"time"
)

// Player tracks the playback position of a sequence. It is safe for
// concurrent use and satisfies export.PlaybackController.
//
// While playing, the position advances with wall time at the sequence tempo
// and wraps at the end. Advance is driven by the caller (a UI tick or the
// serve loop); the player itself starts no goroutines.
type Player struct {
	mu       sync.Mutex
	beat     float64
	playing  bool
	total    float64
	bpm      float64
	now      func() time.Time
	lastTick time.Time
}

// DefaultBPM is used when a sequence leaves bpm unset.
const DefaultBPM = 60

// NewPlayer returns a paused player at beat 0.
func NewPlayer(s *Sequence) *Player {
	bpm := s.BPM
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	return &Player{
		total: float64(s.Beats),
		bpm:   bpm,
		now:   time.Now,
	}
}

// JumpToBeat moves the playhead, clamped to the sequence length.
func (p *Player) JumpToBeat(beat float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beat = p.clamp(beat)
	p.lastTick = p.now()
}

// TogglePlayback flips between playing and paused.
func (p *Player) TogglePlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = !p.playing
	p.lastTick = p.now()
}

// IsPlaying reports whether the playhead is advancing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// CurrentBeat returns the playhead position.
func (p *Player) CurrentBeat() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.beat
}

// Advance moves a playing playhead forward by the wall time elapsed since
// the last call, wrapping at the end of the sequence. It returns the new
// position. A paused player does not move.
func (p *Player) Advance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.playing && !p.lastTick.IsZero() && p.total > 0 {
		elapsed := now.Sub(p.lastTick).Minutes() * p.bpm
		p.beat = math.Mod(p.beat+elapsed, p.total)
	}
	p.lastTick = now
	return p.beat
}

func (p *Player) clamp(beat float64) float64 {
	if math.IsNaN(beat) || beat < 0 {
		return 0
	}
	if beat > p.total {
		return p.total
	}
	return beat
}
