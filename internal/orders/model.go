package orders

import "time"

// Status is the workflow state of a service order. Only the engine
// changes it.
type Status string

const (
	StatusRequested         Status = "requested"
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
	StatusInProgress        Status = "in_progress"
	StatusDelivered         Status = "delivered"
	StatusRevisionRequested Status = "revision_requested"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusDisputed          Status = "disputed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusRejected, StatusInProgress,
		StatusDelivered, StatusRevisionRequested, StatusCompleted,
		StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// Outcome is the admin-chosen result of a dispute resolution.
type Outcome string

const (
	OutcomeRefund         Outcome = "refund"
	OutcomeReleasePayment Outcome = "release_payment"
	OutcomePartialRefund  Outcome = "partial_refund"
	OutcomeRedo           Outcome = "redo"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeRefund, OutcomeReleasePayment, OutcomePartialRefund, OutcomeRedo:
		return true
	}
	return false
}

// Label returns the human-readable form used in notifications.
func (o Outcome) Label() string {
	switch o {
	case OutcomeRefund:
		return "full refund to buyer"
	case OutcomeReleasePayment:
		return "payment released to creator"
	case OutcomePartialRefund:
		return "partial refund to buyer"
	case OutcomeRedo:
		return "work to be redone"
	}
	return string(o)
}

// ActivityEntry is one line of the append-only audit trail on an order.
type ActivityEntry struct {
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderMessage is one chat message in the order's side channel.
type OrderMessage struct {
	SenderID    string    `json:"sender_id"`
	Message     string    `json:"message"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dispute captures an open grievance and, once resolved, its outcome.
type Dispute struct {
	Reason     string     `json:"reason"`
	OpenedBy   string     `json:"opened_by"`
	OpenedAt   time.Time  `json:"opened_at"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
}

// ServiceOrder is the aggregate root for a custom work engagement
// between a buyer and a creator. Commercial terms are snapshotted at
// creation and never re-read from the package.
type ServiceOrder struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`

	BuyerID           string `json:"buyer_id"`
	CreatorID         string `json:"creator_id"`
	AssignedCreatorID string `json:"assigned_creator_id,omitempty"`

	PackageID        string `json:"package_id,omitempty"`
	IsGenericRequest bool   `json:"is_generic_request"`

	PackageName   string  `json:"package_name"`
	Price         float64 `json:"price"`
	DeliveryDays  int     `json:"delivery_days"`
	Revisions     int     `json:"revisions"` // 0 = unlimited
	RevisionsUsed int     `json:"revisions_used"`
	PlatformFee   float64 `json:"platform_fee"`
	CreatorPayout float64 `json:"creator_payout"`

	Requirements  string     `json:"requirements"`
	Attachments   []string   `json:"attachments,omitempty"`
	DeliveryFiles []string   `json:"delivery_files,omitempty"`
	DeliveryNote  string     `json:"delivery_note,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`

	DueDate     time.Time  `json:"due_date"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	IsPaid          bool       `json:"is_paid"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	PaymentReleased bool       `json:"payment_released"`

	Dispute     *Dispute        `json:"dispute,omitempty"`
	ActivityLog []ActivityEntry `json:"activity_log"`
	Messages    []OrderMessage  `json:"messages,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFulfiller reports whether userID is authorized to act as the
// working party: the original creator or the admin-assigned one.
func (o *ServiceOrder) IsFulfiller(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == o.CreatorID || (o.AssignedCreatorID != "" && userID == o.AssignedCreatorID)
}

// IsParticipant reports whether userID is a party to the order.
func (o *ServiceOrder) IsParticipant(userID string) bool {
	return userID == o.BuyerID || o.IsFulfiller(userID)
}

// Counterparty returns the other side of the engagement relative to
// actorID: the buyer for a fulfiller action and the primary fulfiller
// for a buyer action.
func (o *ServiceOrder) Counterparty(actorID string) string {
	if actorID == o.BuyerID {
		if o.AssignedCreatorID != "" {
			return o.AssignedCreatorID
		}
		return o.CreatorID
	}
	return o.BuyerID
}

func (o *ServiceOrder) appendActivity(action, performedBy, details string, at time.Time) {
	o.ActivityLog = append(o.ActivityLog, ActivityEntry{
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		CreatedAt:   at,
	})
}

// Activity actions recorded by the engine.
const (
	ActionOrderCreated      = "order_created"
	ActionStatusAccepted    = "status_accepted"
	ActionStatusRejected    = "status_rejected"
	ActionStatusInProgress  = "status_in_progress"
	ActionStatusDelivered   = "status_delivered"
	ActionOrderCompleted    = "order_completed"
	ActionRevisionRequested = "revision_requested"
	ActionOrderCancelled    = "order_cancelled"
	ActionDisputeOpened     = "dispute_opened"
	ActionDisputeResolved   = "dispute_resolved"
	ActionCreatorAssigned   = "creator_assigned"
	ActionPriceSet          = "price_set"
	ActionPaymentReceived   = "payment_received"
)
