package orders

import (
	"fmt"
	"math"
	"time"
)

// Platform fee rates. Package-originated orders use the standard rate;
// admin-brokered generic requests carry the higher brokered rate.
const (
	PackageFeeRate  = 0.20
	BrokeredFeeRate = 0.30
)

// Default terms for generic customization requests that have no
// package to snapshot from.
const (
	GenericDeliveryDays = 7
	GenericRevisions    = 2
)

// SplitFee divides price into platform fee and creator payout at the
// given rate. The fee is rounded to cents and the payout is the exact
// remainder, so fee + payout == price always holds.
func SplitFee(price, rate float64) (fee, payout float64) {
	fee = math.Round(price*rate*100) / 100
	return fee, price - fee
}

// DeliveryPayload carries the work product attached to a delivery
// transition.
type DeliveryPayload struct {
	Files []string `json:"files"`
	Note  string   `json:"note"`
}

// Engine validates and applies every state transition on a service
// order. All methods follow validate-then-mutate ordering: on error the
// order is untouched, on success exactly one activity entry is appended
// for the status change.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// fulfillerTransitions is the closed set of fulfiller-requested target
// statuses and the pre-states they are valid from. Anything outside
// this map is rejected, never logged generically.
var fulfillerTransitions = map[Status][]Status{
	StatusAccepted:   {StatusRequested},
	StatusRejected:   {StatusRequested},
	StatusInProgress: {StatusAccepted},
	StatusDelivered:  {StatusInProgress, StatusRevisionRequested},
}

func allowedFrom(target Status, current Status) bool {
	for _, s := range fulfillerTransitions[target] {
		if s == current {
			return true
		}
	}
	return false
}

// FulfillerTransition applies one of the fulfiller-driven transitions:
// accept, reject, start work, or deliver.
func (e *Engine) FulfillerTransition(o *ServiceOrder, fulfillerID string, target Status, delivery *DeliveryPayload) error {
	if !o.IsFulfiller(fulfillerID) {
		return ErrUnauthorized
	}
	pre, ok := fulfillerTransitions[target]
	if !ok || len(pre) == 0 {
		return fmt.Errorf("%w: %q is not a fulfiller transition", ErrInvalidTransition, target)
	}
	if !allowedFrom(target, o.Status) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, o.Status, target)
	}

	now := e.now()
	switch target {
	case StatusAccepted:
		o.AcceptedAt = &now
		o.appendActivity(ActionStatusAccepted, fulfillerID, "Order accepted", now)
	case StatusRejected:
		o.appendActivity(ActionStatusRejected, fulfillerID, "Order rejected", now)
	case StatusInProgress:
		o.appendActivity(ActionStatusInProgress, fulfillerID, "Work started", now)
	case StatusDelivered:
		o.DeliveredAt = &now
		if delivery != nil {
			o.DeliveryFiles = delivery.Files
			o.DeliveryNote = delivery.Note
		}
		o.appendActivity(ActionStatusDelivered, fulfillerID, "Work delivered", now)
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// CompleteByBuyer accepts delivered work and releases payment.
func (e *Engine) CompleteByBuyer(o *ServiceOrder, buyerID string) error {
	if buyerID != o.BuyerID {
		return ErrUnauthorized
	}
	if o.Status != StatusDelivered {
		return fmt.Errorf("%w: only delivered orders can be completed", ErrInvalidTransition)
	}

	now := e.now()
	o.Status = StatusCompleted
	o.CompletedAt = &now
	o.PaymentReleased = true
	o.appendActivity(ActionOrderCompleted, buyerID, "Order completed, payment released", now)
	o.UpdatedAt = now
	return nil
}

// RequestRevision sends delivered work back for rework, bounded by the
// order's revision allowance (0 means unlimited).
func (e *Engine) RequestRevision(o *ServiceOrder, buyerID string) error {
	if buyerID != o.BuyerID {
		return ErrUnauthorized
	}
	if o.Status != StatusDelivered {
		return fmt.Errorf("%w: only delivered orders can be sent back for revision", ErrInvalidTransition)
	}
	if o.Revisions > 0 && o.RevisionsUsed >= o.Revisions {
		return ErrRevisionLimit
	}

	now := e.now()
	o.Status = StatusRevisionRequested
	o.RevisionsUsed++
	detail := fmt.Sprintf("Revision %d requested", o.RevisionsUsed)
	if o.Revisions > 0 {
		detail = fmt.Sprintf("Revision %d/%d requested", o.RevisionsUsed, o.Revisions)
	}
	o.appendActivity(ActionRevisionRequested, buyerID, detail, now)
	o.UpdatedAt = now
	return nil
}

// Cancel moves any active order to cancelled. Disputed orders must go
// through dispute resolution instead.
func (e *Engine) Cancel(o *ServiceOrder, actorID, reason string) error {
	if !o.IsParticipant(actorID) {
		return ErrUnauthorized
	}
	if o.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if o.Status == StatusDisputed {
		return ErrDisputeInProgress
	}

	now := e.now()
	o.Status = StatusCancelled
	o.appendActivity(ActionOrderCancelled, actorID, "Cancelled: "+reason, now)
	o.UpdatedAt = now
	return nil
}

// OpenDispute freezes an active or delivered order until an admin
// resolves it. Buyer only, once per order.
func (e *Engine) OpenDispute(o *ServiceOrder, buyerID, reason string) error {
	if buyerID != o.BuyerID {
		return ErrUnauthorized
	}
	switch o.Status {
	case StatusInProgress, StatusDelivered, StatusRevisionRequested:
	default:
		return fmt.Errorf("%w: can only dispute active or delivered orders", ErrInvalidTransition)
	}
	if o.Dispute != nil && !o.Dispute.OpenedAt.IsZero() {
		return ErrDisputeAlreadyOpen
	}

	now := e.now()
	o.Status = StatusDisputed
	o.Dispute = &Dispute{Reason: reason, OpenedBy: buyerID, OpenedAt: now}
	o.appendActivity(ActionDisputeOpened, buyerID, "Dispute opened: "+reason, now)
	o.UpdatedAt = now
	return nil
}

// ResolveDispute closes a disputed order with one of the four admin
// outcomes. This is the only path out of the disputed state.
func (e *Engine) ResolveDispute(o *ServiceOrder, adminID, resolution string, outcome Outcome) error {
	if o.Status != StatusDisputed {
		return ErrNotInDisputedState
	}
	if !outcome.Valid() {
		return ErrInvalidOutcome
	}

	now := e.now()
	o.Dispute.Resolution = resolution
	o.Dispute.ResolvedBy = adminID
	o.Dispute.ResolvedAt = &now
	o.Dispute.Outcome = outcome

	switch outcome {
	case OutcomeRefund:
		o.Status = StatusCancelled
		o.PaymentReleased = false
	case OutcomeReleasePayment, OutcomePartialRefund:
		o.Status = StatusCompleted
		o.CompletedAt = &now
		o.PaymentReleased = true
	case OutcomeRedo:
		o.Status = StatusInProgress
	}

	o.appendActivity(ActionDisputeResolved, adminID,
		fmt.Sprintf("Dispute resolved (%s): %s", outcome.Label(), resolution), now)
	o.UpdatedAt = now
	return nil
}

// Assign binds an admin-chosen fulfiller to the order, optionally
// prices it at the brokered rate, and fast-forwards requested orders to
// accepted so generic requests do not wait for a creator that was never
// asked.
func (e *Engine) Assign(o *ServiceOrder, assignedCreatorID, adminID string, price *float64) error {
	if o.Status.Terminal() || o.Status == StatusDisputed {
		return fmt.Errorf("%w: cannot assign in state %s", ErrInvalidTransition, o.Status)
	}

	now := e.now()
	o.AssignedCreatorID = assignedCreatorID
	o.appendActivity(ActionCreatorAssigned, adminID, "Creator assigned: "+assignedCreatorID, now)

	if price != nil && *price > 0 {
		o.Price = *price
		o.PlatformFee, o.CreatorPayout = SplitFee(*price, BrokeredFeeRate)
		o.appendActivity(ActionPriceSet, adminID, fmt.Sprintf("Price set to %.2f", *price), now)
	}

	if o.Status == StatusRequested {
		o.Status = StatusAccepted
		o.AcceptedAt = &now
		o.appendActivity(ActionStatusAccepted, adminID, "Order accepted on assignment", now)
	}
	o.UpdatedAt = now
	return nil
}

// MarkPaid records payment capture. Bookkeeping only, no status effect.
func (e *Engine) MarkPaid(o *ServiceOrder) error {
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	now := e.now()
	o.IsPaid = true
	o.PaidAt = &now
	o.appendActivity(ActionPaymentReceived, o.BuyerID, fmt.Sprintf("Payment received (%.2f)", o.Price), now)
	o.UpdatedAt = now
	return nil
}
