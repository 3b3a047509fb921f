package workflow

import (
	"fmt"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Transition tables: current state → action → next state. Every status
// change goes through Next; a pair absent from the table is an invalid
// transition, reported as a business outcome rather than an error.
var (
	poTransitions = map[POStatus]map[string]POStatus{
		POStatusDraft: {
			shared.ActionSubmit: POStatusSubmitted,
			shared.ActionCancel: POStatusCancelled,
		},
		POStatusSubmitted: {
			shared.ActionApprove: POStatusApproved,
			shared.ActionReject:  POStatusDraft,
			shared.ActionCancel:  POStatusCancelled,
		},
	}

	grTransitions = map[GRStatus]map[string]GRStatus{
		GRStatusDraft: {
			shared.ActionAccept: GRStatusAccepted,
			shared.ActionReject: GRStatusRejected,
		},
	}

	paymentTransitions = map[PaymentStatus]map[string]PaymentStatus{
		PaymentPending: {
			shared.ActionProcess: PaymentProcessed,
			shared.ActionCancel:  PaymentCancelled,
		},
		PaymentProcessed: {
			shared.ActionClear: PaymentCleared,
		},
	}
)

// nextStatus resolves a transition in a generic table.
func nextStatus[S comparable](table map[S]map[string]S, current S, action string) (S, bool) {
	var zero S
	actions, ok := table[current]
	if !ok {
		return zero, false
	}
	next, ok := actions[action]
	if !ok {
		return zero, false
	}
	return next, true
}

// NextPOStatus resolves a purchase order transition.
func NextPOStatus(current POStatus, action string) (POStatus, bool) {
	return nextStatus(poTransitions, current, action)
}

// NextGRStatus resolves a goods receipt transition.
func NextGRStatus(current GRStatus, action string) (GRStatus, bool) {
	return nextStatus(grTransitions, current, action)
}

// NextPaymentStatus resolves a payment transition.
func NextPaymentStatus(current PaymentStatus, action string) (PaymentStatus, bool) {
	return nextStatus(paymentTransitions, current, action)
}

func invalidTransition(current any, action string) string {
	return fmt.Sprintf("cannot %s from status %v", action, current)
}

// receivablePOStatuses are the purchase order states a goods receipt may be
// created against. Receipts against a fully received order still fail the
// per-line remaining-quantity check.
func receivablePOStatus(status POStatus) bool {
	switch status {
	case POStatusApproved, POStatusPartiallyReceived, POStatusFullyReceived:
		return true
	}
	return false
}
