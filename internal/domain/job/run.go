// Package job holds the bookkeeping shared by the batch jobs: the per item
// outcome type, the fold that tallies outcomes and the persisted run record.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Name identifies a batch job
type Name string

const (
	NameMonthlyInvoices Name = "monthly_invoices"
	NameReminders       Name = "reminders"
	NameYearlyBilling   Name = "yearly_billing"
)

// OutcomeKind classifies what happened to one candidate
type OutcomeKind int

const (
	Created OutcomeKind = iota
	Updated
	Skipped
	Failed
)

// Outcome is the per item result of a batch step
type Outcome struct {
	Kind   OutcomeKind
	Reason string // skip reason
	Err    error
}

// Tally accumulates outcomes of one run
type Tally struct {
	Candidates int
	Created    int
	Updated    int
	Errors     int
	Skipped    map[string]int
	Failures   []string
}

// NewTally returns an empty tally for n candidates
func NewTally(candidates int) Tally {
	return Tally{Candidates: candidates, Skipped: map[string]int{}}
}

// Add folds one outcome into the tally
func (t Tally) Add(o Outcome) Tally {
	switch o.Kind {
	case Created:
		t.Created++
	case Updated:
		t.Updated++
	case Skipped:
		if t.Skipped == nil {
			t.Skipped = map[string]int{}
		}
		t.Skipped[o.Reason]++
	case Failed:
		t.Errors++
		if o.Err != nil && len(t.Failures) < maxFailures {
			t.Failures = append(t.Failures, o.Err.Error())
		}
	}
	return t
}

// SkippedTotal sums all skip reasons
func (t Tally) SkippedTotal() int {
	n := 0
	for _, c := range t.Skipped {
		n += c
	}
	return n
}

const maxFailures = 20

// Fold applies step to every item and tallies the outcomes
func Fold[T any](items []T, step func(T) Outcome) Tally {
	t := NewTally(len(items))
	for _, item := range items {
		t = t.Add(step(item))
	}
	return t
}

// Run is the persisted record of one job execution
type Run struct {
	ID          uuid.UUID
	Job         Name
	StartedAt   time.Time
	FinishedAt  time.Time
	Success     bool
	Candidates  int
	Created     int
	Updated     int
	Errors      int
	Skipped     map[string]int
	Error       string
	TriggeredBy string
}

// NewRun builds a run record from a tally
func NewRun(job Name, startedAt time.Time, t Tally, runErr error, triggeredBy string) *Run {
	r := &Run{
		ID:          uuid.New(),
		Job:         job,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Success:     runErr == nil,
		Candidates:  t.Candidates,
		Created:     t.Created,
		Updated:     t.Updated,
		Errors:      t.Errors,
		Skipped:     t.Skipped,
		TriggeredBy: triggeredBy,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// RunRepository stores job run records
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	FindRecent(ctx context.Context, job Name, limit int) ([]Run, error)
}

// Observer receives finished runs, typically to export metrics
type Observer interface {
	ObserveRun(run *Run)
}

// NopObserver discards runs
type NopObserver struct{}

// ObserveRun does nothing
func (NopObserver) ObserveRun(*Run) {}
