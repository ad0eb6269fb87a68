package conflict

import "fieldsync/internal/entity"

// ResolveSession decides which copy of a session wins.
//
// Local wins outright when it references captured media, since the remote
// cannot reconstruct it, and when it was edited strictly later. If the remote
// carries derived scores the local copy lacks, the two are merged. Otherwise
// the newer timestamp wins, with ties going to local.
func ResolveSession(local, remote entity.Session) Decision {
	fields := DetectSession(local, remote)
	if local.ID != "" && remote.ID != "" && local.ID != remote.ID {
		return Decision{
			Resolution:        Manual{Reason: "session ids differ"},
			ConflictingFields: append(fields, "id"),
			Reason:            "local " + local.ID + " compared with remote " + remote.ID,
		}
	}

	switch {
	case local.HasMedia():
		return auto(UseLocal{}, fields, "local holds captured media")
	case local.UpdatedAt.After(remote.UpdatedAt):
		return auto(UseLocal{}, fields, "local edited after remote")
	case remoteAddsDerived(local, remote):
		return auto(Merge{Session: MergeSession(local, remote)}, fields, "remote carries derived scores missing locally")
	case remote.UpdatedAt.After(local.UpdatedAt):
		return auto(UseServer{}, fields, "remote edited after local")
	default:
		return auto(UseLocal{}, fields, "timestamps equal, local kept")
	}
}

// ResolvePhase always keeps the local annotation: expert-authored content has
// no remote equivalent to fall back on.
func ResolvePhase(local, remote entity.Phase) Decision {
	return auto(UseLocal{}, DetectPhase(local, remote), "phase annotations are authored locally")
}

// MergeSession keeps local capture data and adopts remote derived scores only
// where the local copy has none. Trim bounds stay local when set there.
func MergeSession(local, remote entity.Session) entity.Session {
	merged := local
	if !local.HasTrim() {
		merged.TrimStartMillis = clonePtr(remote.TrimStartMillis)
		merged.TrimEndMillis = clonePtr(remote.TrimEndMillis)
	}
	if merged.QualityScore == nil {
		merged.QualityScore = clonePtr(remote.QualityScore)
	}
	if merged.ConsistencyScore == nil {
		merged.ConsistencyScore = clonePtr(remote.ConsistencyScore)
	}
	if merged.CoverageScore == nil {
		merged.CoverageScore = clonePtr(remote.CoverageScore)
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}
	return merged
}

func remoteAddsDerived(local, remote entity.Session) bool {
	return (local.QualityScore == nil && remote.QualityScore != nil) ||
		(local.ConsistencyScore == nil && remote.ConsistencyScore != nil) ||
		(local.CoverageScore == nil && remote.CoverageScore != nil)
}

func auto(res Resolution, fields []string, reason string) Decision {
	return Decision{Resolution: res, ConflictingFields: fields, AutoResolvable: true, Reason: reason}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
