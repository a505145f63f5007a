package reconcile

import "time"

// Phase is the reconciler's lifecycle phase.
type Phase string

const (
	// PhaseStarting is before the first reconciliation pass.
	PhaseStarting Phase = "starting"
	// PhaseLoading is while the state snapshot and diff are computed.
	PhaseLoading Phase = "loading"
	// PhaseCleaning is while deleted documents are removed.
	PhaseCleaning Phase = "cleaning"
	// PhaseProcessing is while new and changed documents are indexed.
	PhaseProcessing Phase = "processing"
	// PhaseSteady is between passes, waiting for file events.
	PhaseSteady Phase = "steady"
)

// Summary describes one reconciliation pass.
type Summary struct {
	Scanned   int           `json:"scanned"`
	New       int           `json:"new"`
	Changed   int           `json:"changed"`
	Deleted   int           `json:"deleted"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"` // permanent extraction failures
	Failed    int           `json:"failed"`  // transient failures, retried next pass
	Duration  time.Duration `json:"duration"`
}

// Status is a point-in-time view of the reconciler.
type Status struct {
	Phase       Phase     `json:"phase"`
	Tracked     int       `json:"tracked"`
	LastRun     time.Time `json:"last_run,omitempty"`
	LastSummary Summary   `json:"last_summary"`
}

// Status returns the current reconciler status.
func (r *Reconciler) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()

	return Status{
		Phase:       r.phase,
		Tracked:     r.tracked,
		LastRun:     r.lastRun,
		LastSummary: r.lastSummary,
	}
}

func (r *Reconciler) setPhase(p Phase) {
	r.statusMu.Lock()
	r.phase = p
	r.statusMu.Unlock()
}

func (r *Reconciler) recordRun(summary Summary, tracked int) {
	r.statusMu.Lock()
	r.lastRun = time.Now()
	r.lastSummary = summary
	r.tracked = tracked
	r.statusMu.Unlock()
}
