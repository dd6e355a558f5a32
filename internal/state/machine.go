// Package state owns the invoice lifecycle rules. It is pure decision logic:
// the repository computes the next status here before writing anything.
package state

import (
	"fmt"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
)

// Event is a lifecycle trigger applied to an invoice.
type Event string

const (
	// EventCommitClean is a pipeline commit whose candidate carries no
	// review flag.
	EventCommitClean Event = "commit_clean"
	// EventCommitFlagged is a pipeline commit whose candidate asks for
	// human review, or a forced transition after retries are exhausted.
	EventCommitFlagged Event = "commit_flagged"
	// EventApprove is the manual human-approval action.
	EventApprove Event = "approve"
	// EventReject is the manual human-rejection action.
	EventReject Event = "reject"
)

// Transition returns the status an invoice moves to when ev fires in the
// current status.
//
// Pipeline commits re-derive the whole record, so a later page's commit may
// overwrite an earlier page's result (last write wins, serialized per
// invoice). Only an explicit human rejection is final against the pipeline.
// The review-needed branch stays in pending with the review sub-record set.
// Manual approve/reject applies only to a pending invoice and is terminal.
func Transition(current entity.InvoiceStatus, ev Event) (entity.InvoiceStatus, error) {
	switch ev {
	case EventCommitClean, EventCommitFlagged:
		if current == entity.StatusRejected {
			return current, fmt.Errorf("%w: %s on rejected invoice", common.ErrInvalidTransition, ev)
		}
		if ev == EventCommitClean {
			return entity.StatusProcessed, nil
		}
		return entity.StatusPending, nil
	case EventApprove, EventReject:
		if current != entity.StatusPending {
			return current, fmt.Errorf("%w: %s on %s invoice", common.ErrInvalidTransition, ev, current)
		}
		if ev == EventApprove {
			return entity.StatusProcessed, nil
		}
		return entity.StatusRejected, nil
	default:
		return current, fmt.Errorf("%w: unknown event %q", common.ErrInvalidTransition, ev)
	}
}

// CommitEvent maps a candidate's review flag to the commit event it fires.
func CommitEvent(reviewNeeded bool) Event {
	if reviewNeeded {
		return EventCommitFlagged
	}
	return EventCommitClean
}
