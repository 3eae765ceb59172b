package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ensureClient returns a usable client instance
func ensureClient() *asynq.Client {
	if client == nil {
		Init()
	}
	return client
}

// EnqueueOrderEvent schedules one order lifecycle email.
func EnqueueOrderEvent(p OrderEventPayload) error {
	subject, body := renderOrderEvent(p)
	p.Envelope = EmailEnvelope{To: p.Email, Subject: subject, Body: body}
	p.SentAt = time.Now()

	b, _ := json.Marshal(p)
	task := asynq.NewTask(TaskOrderEvent, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueAdminAlert sends an alert to admins
func EnqueueAdminAlert(adminID, severity, message string) error {
	env := EmailEnvelope{To: "admin@templhub.local", Subject: "Admin Alert", Body: message}
	payload := AdminAlertPayload{AdminID: adminID, Severity: severity, Message: message, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskAdminAlert, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("alerts"))
	return err
}

// renderOrderEvent maps an event kind to an email subject and body.
func renderOrderEvent(p OrderEventPayload) (string, string) {
	ref := p.OrderNumber
	if ref == "" {
		ref = p.OrderID
	}
	switch p.Kind {
	case "order:new":
		return "You have a new order",
			fmt.Sprintf("Order %s was placed for %s. Amount %.2f. Accept or reject it from your dashboard.", ref, p.PackageName, p.Amount)
	case "order:accepted":
		return "Your order was accepted",
			fmt.Sprintf("Order %s has been accepted and is waiting to start.", ref)
	case "order:rejected":
		return "Your order was rejected",
			fmt.Sprintf("Order %s was rejected by the creator.", ref)
	case "order:started":
		return "Work has started on your order",
			fmt.Sprintf("Order %s is now in progress.", ref)
	case "order:delivered":
		return "Your order has been delivered",
			fmt.Sprintf("Order %s is delivered. Review the work and complete the order or request a revision.", ref)
	case "order:completed":
		return "Order completed and paid",
			fmt.Sprintf("Order %s is completed. Amount %.2f has been released.", ref, p.Amount)
	case "order:revision_requested":
		return "Revision requested",
			fmt.Sprintf("The buyer sent order %s back for revision. %s", ref, p.Detail)
	case "order:cancelled":
		return "Order cancelled",
			fmt.Sprintf("Order %s was cancelled. %s", ref, p.Detail)
	case "dispute:opened":
		return "Dispute opened on your order",
			fmt.Sprintf("A dispute was opened on order %s: %s", ref, p.Detail)
	case "dispute:resolved":
		return "Dispute resolved",
			fmt.Sprintf("The dispute on order %s was resolved: %s", ref, p.Detail)
	case "order:assigned":
		return "Order assigned to you",
			fmt.Sprintf("Order %s has been assigned. Amount %.2f.", ref, p.Amount)
	case "message:new":
		return "New message on your order",
			fmt.Sprintf("New message on order %s: %s", ref, p.Detail)
	}
	return "Order update", fmt.Sprintf("Order %s was updated (%s).", ref, p.Kind)
}
