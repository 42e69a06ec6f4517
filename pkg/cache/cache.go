// Package cache provides byte-level caching for encoded and transcoded
// animation artifacts.
//
// Transcoding a GIF to WebP shells out to ffmpeg and is by far the slowest
// stage of an export, yet its output is a pure function of the input bytes
// and the transcode options. The cache keys results by content hash so a
// re-export of an unchanged sequence skips the transcoder entirely.
//
// # Backends
//
//   - NullCache: never stores anything (caching disabled)
//   - FileCache: one JSON file per entry under a directory, for the CLI
//   - RedisCache: shared cache for multi-instance `serve` deployments
//
// # Keys
//
// Keys are generated by a Keyer so that all callers agree on their shape.
// ScopedKeyer prefixes every key, e.g. to separate tenants on a shared redis.
package cache

import (
	"context"
	"time"
)

// Cache TTLs.
const (
	// TTLTranscode is how long transcoded blobs are kept.
	TTLTranscode = 7 * 24 * time.Hour

	// TTLArtifact is how long finished export artifacts are kept.
	TTLArtifact = 24 * time.Hour
)

// Cache stores opaque byte values by key.
type Cache interface {
	// Get returns the value and whether it was found. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// TranscodeKeyOpts are the transcode parameters that affect output bytes.
type TranscodeKeyOpts struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
	Loop     int    `json:"loop"`
}

// ArtifactKeyOpts are the export parameters that affect output bytes.
type ArtifactKeyOpts struct {
	Format        string  `json:"format"`
	FramesPerBeat int     `json:"frames_per_beat"`
	BPM           float64 `json:"bpm"`
	Scale         float64 `json:"scale"`
	Quality       int     `json:"quality"`
	Repeat        int     `json:"repeat"`
	Title         bool    `json:"title"`
	Footer        bool    `json:"footer"`
	WebPQuality   int     `json:"webp_quality"`
	Lossless      bool    `json:"lossless"`
}

// Keyer generates cache keys.
type Keyer interface {
	// TranscodeKey identifies the transcoded form of a source blob.
	TranscodeKey(sourceHash string, opts TranscodeKeyOpts) string

	// ArtifactKey identifies a finished export of a sequence.
	ArtifactKey(sequenceHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer generates unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a keyer without a prefix.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// TranscodeKey implements Keyer.
func (k *DefaultKeyer) TranscodeKey(sourceHash string, opts TranscodeKeyOpts) string {
	return hashKey("transcode", sourceHash, opts)
}

// ArtifactKey implements Keyer.
func (k *DefaultKeyer) ArtifactKey(sequenceHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", sequenceHash, opts)
}
