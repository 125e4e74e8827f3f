// Package scan defines scan jobs, their lifecycle state machine and the store
// that owns the job collection.
//
// A job moves Pending -> Running -> Completed or Failed. Completed and Failed
// are terminal and there is no cancellation. The Store only accepts updates
// that follow this state machine and keeps the result present exactly when a
// job is Completed.
package scan
