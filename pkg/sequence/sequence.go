// Package sequence provides a self-contained animation that the export
// pipeline can capture: a TOML-described sequence of beats, a player that
// tracks the playback position, a renderer that draws the beat grid with
// moving props, and a title overlay.
//
// # File format
//
//	title = "Butterfly Weave"
//	beats = 8
//	start_position = true
//	bpm = 90
//
//	[[prop]]
//	name = "left"
//	color = "#e4572e"
//	  [[prop.keyframe]]
//	  beat = 0
//	  x = -0.5
//	  y = 0.0
//	  angle = 90
//
// Keyframe beat 0 is the start position and beats 1..N are the sequence
// beats. Coordinates are relative to the centre of a beat cell and range from
// -1 to 1; angles are in degrees. Between keyframes props move linearly.
package sequence

import (
	"bytes"
	"math"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/seqexport/pkg/cache"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/errors"
)

// Keyframe pins a prop's pose at a whole beat.
type Keyframe struct {
	Beat  int     `toml:"beat"`
	X     float64 `toml:"x"`
	Y     float64 `toml:"y"`
	Angle float64 `toml:"angle"`
}

// Prop is one moving object in the animation.
type Prop struct {
	Name      string     `toml:"name"`
	Color     string     `toml:"color"`
	Keyframes []Keyframe `toml:"keyframe"`
}

// Sequence is a parsed, validated animation description.
type Sequence struct {
	Title         string  `toml:"title"`
	Beats         int     `toml:"beats"`
	StartPosition bool    `toml:"start_position"`
	BPM           float64 `toml:"bpm"`
	Props         []Prop  `toml:"prop"`
}

// Pose is a prop's interpolated position at a fractional beat.
type Pose struct {
	X, Y, Angle float64
}

// Load reads and validates a sequence file.
func Load(path string) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "sequence file %s not found", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidSequence, err, "read sequence file")
	}
	return Parse(data)
}

// Parse decodes and validates a sequence from TOML bytes.
func Parse(data []byte) (*Sequence, error) {
	var s Sequence
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidSequence, err, "decode sequence")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidSequence, "unknown sequence key %q", undecoded[0].String())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the sequence and sorts every prop's keyframes by beat.
func (s *Sequence) Validate() error {
	if s.Beats < 1 || s.Beats > dimension.MaxBeatCount {
		return errors.New(errors.ErrCodeInvalidSequence, "beats must be between 1 and %d, got %d", dimension.MaxBeatCount, s.Beats)
	}
	if s.BPM < 0 || math.IsNaN(s.BPM) || math.IsInf(s.BPM, 0) {
		return errors.New(errors.ErrCodeInvalidSequence, "bpm must be a finite non-negative number, got %v", s.BPM)
	}

	names := make(map[string]bool, len(s.Props))
	for i := range s.Props {
		p := &s.Props[i]
		if p.Name == "" {
			return errors.New(errors.ErrCodeInvalidSequence, "prop %d has no name", i)
		}
		if names[p.Name] {
			return errors.New(errors.ErrCodeInvalidSequence, "duplicate prop %q", p.Name)
		}
		names[p.Name] = true

		if _, err := colorful.Hex(p.Color); err != nil {
			return errors.New(errors.ErrCodeInvalidSequence, "prop %q: color %q is not #rrggbb", p.Name, p.Color)
		}
		if len(p.Keyframes) == 0 {
			return errors.New(errors.ErrCodeInvalidSequence, "prop %q has no keyframes", p.Name)
		}

		sort.SliceStable(p.Keyframes, func(a, b int) bool { return p.Keyframes[a].Beat < p.Keyframes[b].Beat })
		for j, k := range p.Keyframes {
			if k.Beat < 0 || k.Beat > s.Beats {
				return errors.New(errors.ErrCodeInvalidSequence, "prop %q: keyframe beat %d outside 0..%d", p.Name, k.Beat, s.Beats)
			}
			if j > 0 && p.Keyframes[j-1].Beat == k.Beat {
				return errors.New(errors.ErrCodeInvalidSequence, "prop %q: two keyframes at beat %d", p.Name, k.Beat)
			}
			if !inUnitRange(k.X) || !inUnitRange(k.Y) {
				return errors.New(errors.ErrCodeInvalidSequence, "prop %q: keyframe at beat %d has position (%v, %v) outside -1..1", p.Name, k.Beat, k.X, k.Y)
			}
			if math.IsNaN(k.Angle) || math.IsInf(k.Angle, 0) {
				return errors.New(errors.ErrCodeInvalidSequence, "prop %q: keyframe at beat %d has invalid angle", p.Name, k.Beat)
			}
		}
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= -1 && v <= 1
}

// LayoutRequest returns the dimension request for rendering this sequence.
func (s *Sequence) LayoutRequest(scale float64, wantTitle, wantFooter bool) dimension.Request {
	return dimension.Request{
		BeatCount:            s.Beats,
		IncludeStartPosition: s.StartPosition,
		Scale:                scale,
		WantTitle:            wantTitle && s.Title != "",
		WantFooter:           wantFooter,
	}
}

// PoseAt interpolates a prop's pose at a fractional beat. Before the first
// keyframe and after the last the prop holds still.
func (p *Prop) PoseAt(beat float64) Pose {
	ks := p.Keyframes
	if len(ks) == 0 {
		return Pose{}
	}
	if beat <= float64(ks[0].Beat) {
		return ks[0].pose()
	}
	last := ks[len(ks)-1]
	if beat >= float64(last.Beat) {
		return last.pose()
	}

	i := sort.Search(len(ks), func(i int) bool { return float64(ks[i].Beat) > beat })
	a, b := ks[i-1], ks[i]
	t := (beat - float64(a.Beat)) / float64(b.Beat-a.Beat)
	return Pose{
		X:     lerp(a.X, b.X, t),
		Y:     lerp(a.Y, b.Y, t),
		Angle: lerp(a.Angle, b.Angle, t),
	}
}

func (k Keyframe) pose() Pose {
	return Pose{X: k.X, Y: k.Y, Angle: k.Angle}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Hash returns a content hash of the sequence, stable across formatting
// differences in the source file.
func (s *Sequence) Hash() string {
	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(s)
	return cache.Hash(buf.Bytes())
}
