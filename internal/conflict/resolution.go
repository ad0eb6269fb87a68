package conflict

import "fieldsync/internal/entity"

// Strategy enumerates the resolution kinds for reporting and persistence.
type Strategy string

const (
	StrategyUseLocal  Strategy = "USE_LOCAL"
	StrategyUseServer Strategy = "USE_SERVER"
	StrategyMerge     Strategy = "MERGE"
	StrategyManual    Strategy = "MANUAL"
)

// Resolution is the outcome of comparing a local record with its remote
// snapshot. The concrete types are UseLocal, UseServer, Merge and Manual;
// callers branch with a type switch.
type Resolution interface {
	Strategy() Strategy
	resolution()
}

// UseLocal keeps the local record and pushes it to the remote.
type UseLocal struct{}

// UseServer adopts the remote snapshot locally; nothing is uploaded.
type UseServer struct{}

// Merge stores Session locally and pushes it to the remote.
type Merge struct {
	Session entity.Session
}

// Manual means the pair cannot be reconciled automatically.
type Manual struct {
	Reason string
}

func (UseLocal) Strategy() Strategy  { return StrategyUseLocal }
func (UseServer) Strategy() Strategy { return StrategyUseServer }
func (Merge) Strategy() Strategy     { return StrategyMerge }
func (Manual) Strategy() Strategy    { return StrategyManual }

func (UseLocal) resolution()  {}
func (UseServer) resolution() {}
func (Merge) resolution()     {}
func (Manual) resolution()    {}

// Decision wraps a Resolution with the audit detail that produced it.
type Decision struct {
	Resolution Resolution
	// ConflictingFields lists the fields that differ. It is informational only.
	ConflictingFields []string
	AutoResolvable    bool
	Reason            string
}

// Strategy returns the decision's strategy, or "" for a zero Decision.
func (d Decision) Strategy() Strategy {
	if d.Resolution == nil {
		return ""
	}
	return d.Resolution.Strategy()
}
