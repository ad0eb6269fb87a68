// Package entity defines the local records the sync engine reads and the
// sync status it writes back.
package entity

import (
	"strings"
	"time"

	"fieldsync/internal/cues"
)

// SyncStatus tags a local record with its reconciliation state.
type SyncStatus string

const (
	SyncLocalOnly SyncStatus = "LOCAL_ONLY"
	SyncPending   SyncStatus = "PENDING"
	SyncSyncing   SyncStatus = "SYNCING"
	SyncSynced    SyncStatus = "SYNCED"
	SyncConflict  SyncStatus = "CONFLICT"
	SyncError     SyncStatus = "ERROR"
)

// ParseSyncStatus converts a stored value, defaulting to LOCAL_ONLY.
func ParseSyncStatus(value string) SyncStatus {
	switch s := SyncStatus(strings.ToUpper(strings.TrimSpace(value))); s {
	case SyncPending, SyncSyncing, SyncSynced, SyncConflict, SyncError:
		return s
	default:
		return SyncLocalOnly
	}
}

// Session is one capture: raw media plus the measurements derived from it.
type Session struct {
	ID               string     `json:"id" yaml:"id"`
	Label            string     `json:"label,omitempty" yaml:"label"`
	CapturedAt       time.Time  `json:"captured_at" yaml:"captured_at"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"updated_at"`
	MediaRef         string     `json:"media_ref,omitempty" yaml:"media_ref"`
	FrameCount       int        `json:"frame_count" yaml:"frame_count"`
	DurationMillis   int64      `json:"duration_ms" yaml:"duration_ms"`
	TrimStartMillis  *int64     `json:"trim_start_ms,omitempty" yaml:"trim_start_ms"`
	TrimEndMillis    *int64     `json:"trim_end_ms,omitempty" yaml:"trim_end_ms"`
	QualityScore     *float64   `json:"quality_score,omitempty" yaml:"quality_score"`
	ConsistencyScore *float64   `json:"consistency_score,omitempty" yaml:"consistency_score"`
	CoverageScore    *float64   `json:"coverage_score,omitempty" yaml:"coverage_score"`
	SyncStatus       SyncStatus `json:"-" yaml:"-"`
}

// HasMedia reports whether the record references raw captured media.
func (s Session) HasMedia() bool {
	return strings.TrimSpace(s.MediaRef) != ""
}

// HasTrim reports whether trim bounds were set locally.
func (s Session) HasTrim() bool {
	return s.TrimStartMillis != nil || s.TrimEndMillis != nil
}

// Phase is an expert annotation of a frame range within a session.
type Phase struct {
	ID         string     `json:"id" yaml:"id"`
	SessionID  string     `json:"session_id" yaml:"session_id"`
	PhaseName  string     `json:"phase_name" yaml:"phase_name"`
	StartFrame int        `json:"start_frame" yaml:"start_frame"`
	EndFrame   int        `json:"end_frame" yaml:"end_frame"`
	Cues       cues.Set   `json:"cues" yaml:"cues"`
	Notes      string     `json:"notes,omitempty" yaml:"notes"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	SyncStatus SyncStatus `json:"-" yaml:"-"`
}

// Frame is one pose-estimation sample. Landmarks are flattened x,y,z triplets.
type Frame struct {
	SessionID       string    `json:"session_id" yaml:"session_id"`
	Index           int       `json:"index" yaml:"index"`
	TimestampMillis int64     `json:"timestamp_ms" yaml:"timestamp_ms"`
	Landmarks       []float32 `json:"landmarks" yaml:"landmarks"`
	Confidence      float32   `json:"confidence" yaml:"confidence"`
}

// SetupConfig records the camera placement used for a session.
type SetupConfig struct {
	ID               string     `json:"id" yaml:"id"`
	SessionID        string     `json:"session_id" yaml:"session_id"`
	CameraHeightCm   float64    `json:"camera_height_cm" yaml:"camera_height_cm"`
	CameraDistanceCm float64    `json:"camera_distance_cm" yaml:"camera_distance_cm"`
	CameraAngleDeg   float64    `json:"camera_angle_deg" yaml:"camera_angle_deg"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"updated_at"`
	SyncStatus       SyncStatus `json:"-" yaml:"-"`
}

// Chunk splits frames into consecutive slices of at most size records.
func Chunk(frames []Frame, size int) [][]Frame {
	if size <= 0 || len(frames) == 0 {
		if len(frames) == 0 {
			return nil
		}
		return [][]Frame{frames}
	}
	chunks := make([][]Frame, 0, (len(frames)+size-1)/size)
	for start := 0; start < len(frames); start += size {
		end := start + size
		if end > len(frames) {
			end = len(frames)
		}
		chunks = append(chunks, frames[start:end])
	}
	return chunks
}
