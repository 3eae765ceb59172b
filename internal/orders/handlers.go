package orders

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/templhub/backend/internal/payments"
)

// Handler exposes the order workflow over HTTP and translates the
// typed guard errors into responses.
type Handler struct {
	svc      *Service
	checkout payments.SessionProvider
}

func NewHandler(svc *Service, checkout payments.SessionProvider) *Handler {
	return &Handler{svc: svc, checkout: checkout}
}

func actor(c echo.Context) (string, string, bool) {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return "", "", false
	}
	role, _ := c.Get("role").(string)
	return uid, role, true
}

// respondError maps guard failures to 4xx. Unauthorized reads as not
// found so outsiders cannot probe for order existence.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return c.JSON(http.StatusNotFound, echo.Map{"error": ErrNotFound.Error()})
	case errors.Is(err, ErrPackageNotFound), errors.Is(err, ErrTemplateNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyTerminal),
		errors.Is(err, ErrDisputeInProgress),
		errors.Is(err, ErrDisputeAlreadyOpen),
		errors.Is(err, ErrRevisionLimit),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrNotInDisputedState),
		errors.Is(err, ErrInvalidFulfiller),
		errors.Is(err, ErrPackageUnavailable),
		errors.Is(err, ErrNoFulfillerAvailable),
		errors.Is(err, ErrAlreadyPaid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// CreateOrder - buyer places an order from a package
// POST /orders
func (h *Handler) CreateOrder(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		PackageID    string   `json:"package_id"`
		Requirements string   `json:"requirements"`
		Attachments  []string `json:"attachments"`
	}
	if err := c.Bind(&req); err != nil || req.PackageID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid package_id"})
	}
	if req.Requirements == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "requirements are required"})
	}

	o, err := h.svc.CreateOrder(c.Request().Context(), uid, req.PackageID, req.Requirements, req.Attachments)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

// CreateGenericRequest - buyer asks for custom work with no package
// POST /orders/generic
func (h *Handler) CreateGenericRequest(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		TemplateID   string   `json:"template_id"`
		Requirements string   `json:"requirements"`
		Attachments  []string `json:"attachments"`
	}
	if err := c.Bind(&req); err != nil || req.TemplateID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid template_id"})
	}
	if req.Requirements == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "requirements are required"})
	}

	o, err := h.svc.CreateGenericRequest(c.Request().Context(), uid, req.TemplateID, req.Requirements, req.Attachments)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

// GetOrder - any party (or admin) views an order
// GET /orders/:id
func (h *Handler) GetOrder(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), uid, role == "admin")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// UpdateStatus - fulfiller accepts/rejects/starts/delivers
// POST /orders/:id/status
func (h *Handler) UpdateStatus(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Status        string   `json:"status"`
		DeliveryFiles []string `json:"delivery_files"`
		DeliveryNote  string   `json:"delivery_note"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}

	var delivery *DeliveryPayload
	if Status(req.Status) == StatusDelivered {
		delivery = &DeliveryPayload{Files: req.DeliveryFiles, Note: req.DeliveryNote}
	}

	o, err := h.svc.FulfillerTransition(c.Request().Context(), c.Param("id"), uid, Status(req.Status), delivery)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Complete - buyer accepts delivered work
// POST /orders/:id/complete
func (h *Handler) Complete(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.CompleteOrder(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// RequestRevision - buyer sends delivered work back
// POST /orders/:id/revision
func (h *Handler) RequestRevision(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.RequestRevision(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Cancel - buyer or fulfiller cancels an active order
// POST /orders/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}
	o, err := h.svc.Cancel(c.Request().Context(), c.Param("id"), uid, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// OpenDispute - buyer escalates an active or delivered order
// POST /orders/:id/dispute
func (h *Handler) OpenDispute(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: reason required"})
	}
	o, err := h.svc.OpenDispute(c.Request().Context(), c.Param("id"), uid, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

// SendMessage - participant posts to the order chat. Closed once the
// order is terminal; that gate lives here, not in the data model.
// POST /orders/:id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Message     string   `json:"message"`
		Attachments []string `json:"attachments"`
	}
	if err := c.Bind(&req); err != nil || req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message is required"})
	}

	current, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), uid, role == "admin")
	if err != nil {
		return respondError(c, err)
	}
	if current.Status.Terminal() {
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":            "messaging is closed on finished orders",
			"messaging_closed": true,
		})
	}

	o, err := h.svc.SendMessage(c.Request().Context(), c.Param("id"), uid, req.Message, req.Attachments)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// ListMessages - the conversation for an order
// GET /orders/:id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), uid, role == "admin")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"messages":         o.Messages,
		"messaging_closed": o.Status.Terminal(),
	})
}

// Checkout - buyer asks for a hosted payment session
// POST /orders/:id/checkout
func (h *Handler) Checkout(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), uid, false)
	if err != nil {
		return respondError(c, err)
	}
	if uid != o.BuyerID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": ErrNotFound.Error()})
	}
	if o.Price <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order has no price yet"})
	}
	if o.IsPaid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ErrAlreadyPaid.Error()})
	}

	url, err := h.checkout.CreateSession(c.Request().Context(), o.ID, o.Price, "")
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "could not create payment session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"payment_url": url})
}

// ConfirmPayment - buyer confirms the checkout completed
// POST /orders/:id/payment/confirm
func (h *Handler) ConfirmPayment(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.svc.MarkPaid(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// ListMine - orders where the caller is the buyer
// GET /orders/mine
func (h *Handler) ListMine(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.svc.ListForBuyer(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items})
}

// ListAssigned - orders where the caller is a fulfiller
// GET /orders/assigned?status=
func (h *Handler) ListAssigned(c echo.Context) error {
	uid, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.svc.ListForFulfiller(c.Request().Context(), uid, Status(c.QueryParam("status")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items})
}

// AdminListOrders - all orders, optionally filtered
// GET /admin/orders?status=&generic=true
func (h *Handler) AdminListOrders(c echo.Context) error {
	f := ListFilters{
		Status:      Status(c.QueryParam("status")),
		OnlyGeneric: c.QueryParam("generic") == "true",
	}
	if f.Status != "" && !f.Status.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
	}
	items, err := h.svc.ListAll(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items})
}

// AdminAssign - admin binds a fulfiller to an order, optionally pricing it
// POST /admin/orders/:id/assign
func (h *Handler) AdminAssign(c echo.Context) error {
	adminID, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		AssignedCreatorID string   `json:"assigned_creator_id"`
		Price             *float64 `json:"price"`
	}
	if err := c.Bind(&req); err != nil || req.AssignedCreatorID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assigned_creator_id is required"})
	}

	o, err := h.svc.Reassign(c.Request().Context(), c.Param("id"), req.AssignedCreatorID, adminID, req.Price)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// AdminResolveDispute - admin closes a disputed order
// POST /admin/orders/:id/resolve
func (h *Handler) AdminResolveDispute(c echo.Context) error {
	adminID, _, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Resolution string `json:"resolution"`
		Outcome    string `json:"outcome"`
	}
	if err := c.Bind(&req); err != nil || req.Resolution == "" || req.Outcome == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: resolution and outcome required"})
	}

	o, err := h.svc.ResolveDispute(c.Request().Context(), c.Param("id"), adminID, req.Resolution, Outcome(req.Outcome))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}
