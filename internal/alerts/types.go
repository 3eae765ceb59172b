package alerts

import "time"

// Task type constants
const (
	TaskOrderEvent = "email:order_event"
	TaskAdminAlert = "email:admin_alert"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OrderEventPayload carries one order lifecycle notification to the
// email worker. Kind is the orders event kind (order:accepted,
// dispute:resolved, ...).
type OrderEventPayload struct {
	Kind        string        `json:"kind"`
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	PackageName string        `json:"package_name"`
	RecipientID string        `json:"recipient_id"`
	Email       string        `json:"email"`
	Amount      float64       `json:"amount"`
	Detail      string        `json:"detail,omitempty"`
	Envelope    EmailEnvelope `json:"envelope"`
	SentAt      time.Time     `json:"sent_at"`
}

// Admin alert payload
type AdminAlertPayload struct {
	AdminID  string        `json:"admin_id"`
	Severity string        `json:"severity"` // info|warning|critical
	Message  string        `json:"message"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}
