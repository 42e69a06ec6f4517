package export

import "time"

// Stage is a position in the export state machine. Capturing, Encoding,
// Transcoding, Complete and Error are also the stages reported through
// progress events.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageCapturing   Stage = "capturing"
	StageEncoding    Stage = "encoding"
	StageTranscoding Stage = "transcoding"
	StageComplete    Stage = "complete"
	StageCancelled   Stage = "cancelled"
	StageError       Stage = "error"
)

// Terminal reports whether s ends a job.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageCancelled || s == StageError
}

// Active reports whether a job in stage s is still running.
func (s Stage) Active() bool {
	return s == StageCapturing || s == StageEncoding || s == StageTranscoding
}

// Progress is one event of the progress stream. Current and Total are only
// meaningful while capturing; Error only for StageError.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressFunc receives progress events on the exporting goroutine.
type ProgressFunc func(Progress)

// JobStatus is a snapshot of the running job.
type JobStatus struct {
	ID          string    `json:"id"`
	Stage       Stage     `json:"stage"`
	Format      string    `json:"format"`
	FrameIndex  int       `json:"frame_index"`
	TotalFrames int       `json:"total_frames"`
	StartedAt   time.Time `json:"started_at"`
	Cancelling  bool      `json:"cancelling"`
}
