package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/templhub/backend/internal/catalog"
	"github.com/templhub/backend/internal/users"
)

// Notification event kinds emitted around transitions.
const (
	EventOrderNew          = "order:new"
	EventOrderAccepted     = "order:accepted"
	EventOrderRejected     = "order:rejected"
	EventOrderStarted      = "order:started"
	EventOrderDelivered    = "order:delivered"
	EventOrderCompleted    = "order:completed"
	EventRevisionRequested = "order:revision_requested"
	EventOrderCancelled    = "order:cancelled"
	EventDisputeOpened     = "dispute:opened"
	EventDisputeResolved   = "dispute:resolved"
	EventOrderAssigned     = "order:assigned"
	EventMessageNew        = "message:new"
)

// OrderStore is the persistence contract the service depends on.
type OrderStore interface {
	Insert(ctx context.Context, o *ServiceOrder) error
	Get(ctx context.Context, id string) (*ServiceOrder, error)
	Save(ctx context.Context, o *ServiceOrder, expect Status) error
	CompleteAndSettle(ctx context.Context, o *ServiceOrder, expect Status) error
	ListForBuyer(ctx context.Context, buyerID string) ([]ServiceOrder, error)
	ListForFulfiller(ctx context.Context, fulfillerID string, status Status) ([]ServiceOrder, error)
	ListAll(ctx context.Context, f ListFilters) ([]ServiceOrder, error)
}

// CatalogStore is the package/template surface the workflow reads.
type CatalogStore interface {
	GetPackage(ctx context.Context, id string) (*catalog.Package, error)
	IncrementOrders(ctx context.Context, id string) error
	TemplateExists(ctx context.Context, id string) (bool, error)
}

// Directory answers role questions for reassignment and the
// generic-request admin pool.
type Directory interface {
	Role(ctx context.Context, id string) (string, error)
	UnassignedPoolAdmin(ctx context.Context) (string, error)
}

// Notifier is a fire-and-forget sink. Implementations must never block
// a transition; failures are theirs to log.
type Notifier interface {
	OrderEvent(recipientID, kind string, payload map[string]any)
}

// Service runs the order workflow: it loads the aggregate, lets the
// engine validate and mutate, persists conditionally on the pre-state,
// and relays notifications.
type Service struct {
	store   OrderStore
	catalog CatalogStore
	users   Directory
	notify  Notifier
	engine  *Engine
	now     func() time.Time
}

func NewService(store OrderStore, cat CatalogStore, dir Directory, notify Notifier) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		users:   dir,
		notify:  notify,
		engine:  NewEngine(),
		now:     time.Now,
	}
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

// CreateOrder instantiates an order from an active package, snapshotting
// its commercial terms at the standard fee rate.
func (s *Service) CreateOrder(ctx context.Context, buyerID, packageID, requirements string, attachments []string) (*ServiceOrder, error) {
	pkg, err := s.catalog.GetPackage(ctx, packageID)
	if err != nil {
		if errors.Is(err, catalog.ErrPackageNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	if !pkg.IsActive {
		return nil, ErrPackageUnavailable
	}

	now := s.now()
	fee, payout := SplitFee(pkg.Price, PackageFeeRate)
	o := &ServiceOrder{
		ID:            uuid.New().String(),
		OrderNumber:   generateOrderNumber(),
		BuyerID:       buyerID,
		CreatorID:     pkg.CreatorID,
		PackageID:     pkg.ID,
		PackageName:   pkg.Name,
		Price:         pkg.Price,
		DeliveryDays:  pkg.DeliveryDays,
		Revisions:     pkg.Revisions,
		PlatformFee:   fee,
		CreatorPayout: payout,
		Requirements:  requirements,
		Attachments:   attachments,
		DueDate:       now.AddDate(0, 0, pkg.DeliveryDays),
		Status:        StatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.appendActivity(ActionOrderCreated, buyerID, "Order placed for "+pkg.Name, now)

	if err := s.store.Insert(ctx, o); err != nil {
		return nil, err
	}
	if err := s.catalog.IncrementOrders(ctx, pkg.ID); err != nil {
		log.Printf("[orders] package stats increment failed for %s: %v", pkg.ID, err)
	}
	s.notify.OrderEvent(pkg.CreatorID, EventOrderNew, s.eventPayload(o))
	return o, nil
}

// CreateGenericRequest creates an ad hoc customization request with no
// package behind it. The unassigned-pool admin fronts the order as
// placeholder fulfiller until reassignment; price starts at zero.
func (s *Service) CreateGenericRequest(ctx context.Context, buyerID, templateID, requirements string, attachments []string) (*ServiceOrder, error) {
	exists, err := s.catalog.TemplateExists(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTemplateNotFound
	}

	poolAdmin, err := s.users.UnassignedPoolAdmin(ctx)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrNoFulfillerAvailable
		}
		return nil, err
	}

	now := s.now()
	o := &ServiceOrder{
		ID:               uuid.New().String(),
		OrderNumber:      generateOrderNumber(),
		BuyerID:          buyerID,
		CreatorID:        poolAdmin,
		IsGenericRequest: true,
		PackageName:      "Custom request",
		DeliveryDays:     GenericDeliveryDays,
		Revisions:        GenericRevisions,
		Requirements:     requirements,
		Attachments:      attachments,
		DueDate:          now.AddDate(0, 0, GenericDeliveryDays),
		Status:           StatusRequested,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.appendActivity(ActionOrderCreated, buyerID, "Custom request submitted", now)

	if err := s.store.Insert(ctx, o); err != nil {
		return nil, err
	}
	s.notify.OrderEvent(poolAdmin, EventOrderNew, s.eventPayload(o))
	return o, nil
}

// GetOrder returns the order if the requester is a party to it (or an
// admin). Unauthorized access reads the same as a missing order at the
// HTTP edge.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID string, isAdmin bool) (*ServiceOrder, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !o.IsParticipant(requesterID) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

// mutate runs one transition as a read-modify-write unit. The engine
// validates before touching the aggregate; the conditional save matches
// the loaded status, so a lost race writes nothing.
func (s *Service) mutate(ctx context.Context, orderID string, settle bool, fn func(*ServiceOrder) error) (*ServiceOrder, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	expect := o.Status
	if err := fn(o); err != nil {
		return nil, err
	}
	if settle {
		err = s.store.CompleteAndSettle(ctx, o, expect)
	} else {
		err = s.store.Save(ctx, o, expect)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FulfillerTransition applies accept/reject/start/deliver on behalf of
// the working party.
func (s *Service) FulfillerTransition(ctx context.Context, orderID, fulfillerID string, target Status, delivery *DeliveryPayload) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.FulfillerTransition(o, fulfillerID, target, delivery)
	})
	if err != nil {
		return nil, err
	}

	kind := map[Status]string{
		StatusAccepted:   EventOrderAccepted,
		StatusRejected:   EventOrderRejected,
		StatusInProgress: EventOrderStarted,
		StatusDelivered:  EventOrderDelivered,
	}[target]
	s.notify.OrderEvent(o.BuyerID, kind, s.eventPayload(o))
	return o, nil
}

// CompleteOrder accepts delivered work, releases payment and settles
// the package revenue counters.
func (s *Service) CompleteOrder(ctx context.Context, orderID, buyerID string) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, true, func(o *ServiceOrder) error {
		return s.engine.CompleteByBuyer(o, buyerID)
	})
	if err != nil {
		return nil, err
	}
	s.notify.OrderEvent(o.Counterparty(buyerID), EventOrderCompleted, s.eventPayload(o))
	return o, nil
}

func (s *Service) RequestRevision(ctx context.Context, orderID, buyerID string) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.RequestRevision(o, buyerID)
	})
	if err != nil {
		return nil, err
	}
	s.notify.OrderEvent(o.Counterparty(buyerID), EventRevisionRequested, s.eventPayload(o))
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, orderID, actorID, reason string) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.Cancel(o, actorID, reason)
	})
	if err != nil {
		return nil, err
	}
	p := s.eventPayload(o)
	p["reason"] = reason
	s.notify.OrderEvent(o.Counterparty(actorID), EventOrderCancelled, p)
	return o, nil
}

func (s *Service) OpenDispute(ctx context.Context, orderID, buyerID, reason string) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.OpenDispute(o, buyerID, reason)
	})
	if err != nil {
		return nil, err
	}
	p := s.eventPayload(o)
	p["reason"] = reason
	s.notify.OrderEvent(o.Counterparty(buyerID), EventDisputeOpened, p)
	return o, nil
}

// ResolveDispute closes a disputed order with a binding admin outcome
// and tells both sides what was decided.
func (s *Service) ResolveDispute(ctx context.Context, orderID, adminID, resolution string, outcome Outcome) (*ServiceOrder, error) {
	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.ResolveDispute(o, adminID, resolution, outcome)
	})
	if err != nil {
		return nil, err
	}
	p := s.eventPayload(o)
	p["outcome"] = outcome.Label()
	p["resolution"] = resolution
	s.notify.OrderEvent(o.BuyerID, EventDisputeResolved, p)
	s.notify.OrderEvent(o.Counterparty(o.BuyerID), EventDisputeResolved, p)
	return o, nil
}

// Reassign binds an admin-chosen fulfiller, optionally pricing the
// order at the brokered rate, and fast-forwards requested orders to
// accepted.
func (s *Service) Reassign(ctx context.Context, orderID, assignedCreatorID, adminID string, price *float64) (*ServiceOrder, error) {
	role, err := s.users.Role(ctx, assignedCreatorID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrInvalidFulfiller
		}
		return nil, err
	}
	if role != users.RoleCreator && role != users.RoleAdmin {
		return nil, ErrInvalidFulfiller
	}

	o, err := s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		return s.engine.Assign(o, assignedCreatorID, adminID, price)
	})
	if err != nil {
		return nil, err
	}
	s.notify.OrderEvent(assignedCreatorID, EventOrderAssigned, s.eventPayload(o))
	s.notify.OrderEvent(o.BuyerID, EventOrderAssigned, s.eventPayload(o))
	return o, nil
}

// SendMessage appends to the order's chat channel. No status effect;
// terminality gating is an API-boundary policy, not enforced here.
func (s *Service) SendMessage(ctx context.Context, orderID, senderID, text string, attachments []string) (*ServiceOrder, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(senderID) {
		return nil, ErrUnauthorized
	}

	now := s.now()
	expect := o.Status
	o.Messages = append(o.Messages, OrderMessage{
		SenderID:    senderID,
		Message:     text,
		Attachments: attachments,
		CreatedAt:   now,
	})
	o.UpdatedAt = now
	if err := s.store.Save(ctx, o, expect); err != nil {
		return nil, err
	}

	p := s.eventPayload(o)
	p["message"] = text
	s.notify.OrderEvent(o.Counterparty(senderID), EventMessageNew, p)
	return o, nil
}

// MarkPaid records payment capture reported by the payments provider.
func (s *Service) MarkPaid(ctx context.Context, orderID, buyerID string) (*ServiceOrder, error) {
	return s.mutate(ctx, orderID, false, func(o *ServiceOrder) error {
		if buyerID != o.BuyerID {
			return ErrUnauthorized
		}
		return s.engine.MarkPaid(o)
	})
}

func (s *Service) ListForBuyer(ctx context.Context, buyerID string) ([]ServiceOrder, error) {
	return s.store.ListForBuyer(ctx, buyerID)
}

func (s *Service) ListForFulfiller(ctx context.Context, fulfillerID string, status Status) ([]ServiceOrder, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidTransition, status)
	}
	return s.store.ListForFulfiller(ctx, fulfillerID, status)
}

func (s *Service) ListAll(ctx context.Context, f ListFilters) ([]ServiceOrder, error) {
	return s.store.ListAll(ctx, f)
}

func (s *Service) eventPayload(o *ServiceOrder) map[string]any {
	return map[string]any{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"package_name": o.PackageName,
		"status":       string(o.Status),
		"amount":       o.Price,
	}
}
