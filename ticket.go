package audityzer

import (
	"context"
	"slices"
	"sync"

	"github.com/zero-day-ai/audityzer/scan"
)

// Ticket tracks one submitted scan.
type Ticket struct {
	id      string
	address string
	ctx     context.Context
	done    chan struct{}

	mu        sync.Mutex
	job       scan.Job
	err       error
	notifyErr []*NotificationError
}

func newTicket(ctx context.Context, job scan.Job) *Ticket {
	return &Ticket{
		id:      job.ID,
		address: job.TargetAddress,
		ctx:     ctx,
		done:    make(chan struct{}),
		job:     job,
	}
}

// ID returns the job id.
func (t *Ticket) ID() string { return t.id }

// Address returns the submitted target address.
func (t *Ticket) Address() string { return t.address }

// Done is closed once the job is terminal and its notification pass has
// finished.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the ticket is done and returns the final job. The error
// is an *AnalysisError when the audit failed. If ctx ends first, the job as
// submitted and ctx's error are returned; the scan keeps running.
func (t *Ticket) Wait(ctx context.Context) (scan.Job, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.job, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job, t.err
}

// NotificationErrors returns the ticket notifications that failed. They
// never affect the job's status.
func (t *Ticket) NotificationErrors() []*NotificationError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.notifyErr)
}

func (t *Ticket) setOutcome(job scan.Job, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job = job
	t.err = err
}

func (t *Ticket) addNotificationError(err *NotificationError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyErr = append(t.notifyErr, err)
}
