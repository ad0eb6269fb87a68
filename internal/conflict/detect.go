package conflict

import (
	"fieldsync/internal/cues"
	"fieldsync/internal/entity"
)

// DetectSession compares the content fields of two session snapshots and
// returns the names of those that differ. Timestamps and sync status are not
// content and are ignored. An empty result means there is no conflict.
func DetectSession(local, remote entity.Session) []string {
	var fields []string
	add := func(name string, differs bool) {
		if differs {
			fields = append(fields, name)
		}
	}
	add("label", local.Label != remote.Label)
	add("captured_at", !local.CapturedAt.Equal(remote.CapturedAt))
	add("media_ref", local.MediaRef != remote.MediaRef)
	add("frame_count", local.FrameCount != remote.FrameCount)
	add("duration_ms", local.DurationMillis != remote.DurationMillis)
	add("trim_start_ms", !equalPtr(local.TrimStartMillis, remote.TrimStartMillis))
	add("trim_end_ms", !equalPtr(local.TrimEndMillis, remote.TrimEndMillis))
	add("quality_score", !equalPtr(local.QualityScore, remote.QualityScore))
	add("consistency_score", !equalPtr(local.ConsistencyScore, remote.ConsistencyScore))
	add("coverage_score", !equalPtr(local.CoverageScore, remote.CoverageScore))
	return fields
}

// DetectPhase compares the content fields of two phase annotations.
func DetectPhase(local, remote entity.Phase) []string {
	var fields []string
	add := func(name string, differs bool) {
		if differs {
			fields = append(fields, name)
		}
	}
	add("session_id", local.SessionID != remote.SessionID)
	add("phase_name", local.PhaseName != remote.PhaseName)
	add("start_frame", local.StartFrame != remote.StartFrame)
	add("end_frame", local.EndFrame != remote.EndFrame)
	add("cues", !cues.Equal(local.Cues, remote.Cues))
	add("notes", local.Notes != remote.Notes)
	return fields
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
