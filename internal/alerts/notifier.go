package alerts

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/templhub/backend/internal/users"
)

// Notifier delivers order lifecycle events to users: an in-app
// notification row plus a queued email. Implements orders.Notifier.
// Delivery is best effort; failures are logged and never returned.
type Notifier struct {
	pool  *pgxpool.Pool
	users *users.Directory
}

func NewNotifier(pool *pgxpool.Pool, dir *users.Directory) *Notifier {
	return &Notifier{pool: pool, users: dir}
}

// OrderEvent records an in-app notification and enqueues the matching
// email for recipientID.
func (n *Notifier) OrderEvent(recipientID, kind string, payload map[string]any) {
	if recipientID == "" {
		return
	}

	p := OrderEventPayload{
		Kind:        kind,
		RecipientID: recipientID,
		OrderID:     stringField(payload, "order_id"),
		OrderNumber: stringField(payload, "order_number"),
		PackageName: stringField(payload, "package_name"),
		Amount:      floatField(payload, "amount"),
		Detail:      detailField(payload),
	}

	if err := n.insertInApp(recipientID, kind, p, payload); err != nil {
		log.Printf("[notify][ERROR] in-app insert failed: kind=%s user=%s err=%v", kind, recipientID, err)
	}

	email, err := n.users.Email(context.Background(), recipientID)
	if err != nil {
		log.Printf("[notify][ERROR] email lookup failed: user=%s err=%v", recipientID, err)
		return
	}
	p.Email = email

	if err := EnqueueOrderEvent(p); err != nil {
		log.Printf("[notify][ERROR] enqueue failed: kind=%s user=%s err=%v", kind, recipientID, err)
		return
	}
	log.Printf("[notify] queued %s -> user=%s order=%s", kind, recipientID, p.OrderID)
}

func (n *Notifier) insertInApp(recipientID, kind string, p OrderEventPayload, payload map[string]any) error {
	subject, body := renderOrderEvent(p)
	meta, _ := json.Marshal(payload)
	_, err := n.pool.Exec(context.Background(),
		`INSERT INTO notifications (id, user_id, type, title, body, reference, metadata)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		uuid.NewString(), recipientID, kind, subject, body, p.OrderID, meta)
	return err
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func detailField(m map[string]any) string {
	for _, key := range []string{"detail", "reason", "resolution", "outcome", "message"} {
		if v := stringField(m, key); v != "" {
			return v
		}
	}
	return ""
}
