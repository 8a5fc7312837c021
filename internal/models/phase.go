package models

// Phase is a session's derived kanban position. It is a pure function of
// the session record and live repository state, never persisted as ground
// truth.
type Phase string

const (
	// PhaseTodo means the session has no commits ahead of main.
	PhaseTodo Phase = "todo"
	// PhaseCoding means the session is ahead of main with a dirty tree.
	PhaseCoding Phase = "coding"
	// PhaseReview means the session is ahead of main with a clean tree.
	PhaseReview Phase = "review"
	// PhaseMerged is terminal: the session was merged or is the main checkout.
	PhaseMerged Phase = "merged"
)

// DeterminePhase derives a phase from commit count ahead of main and
// working-tree dirtiness. Zero commits ahead is always todo, regardless of
// dirtiness.
func DeterminePhase(commitsAhead int, dirty bool) Phase {
	if commitsAhead == 0 {
		return PhaseTodo
	}
	if dirty {
		return PhaseCoding
	}
	return PhaseReview
}
