package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the package catalog over HTTP.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// CreatePackage allows a creator to publish a service package
// POST /catalog/packages
func (h *Handler) CreatePackage(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		TemplateID   string   `json:"template_id"`
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Price        float64  `json:"price"`
		DeliveryDays int      `json:"delivery_days"`
		Revisions    int      `json:"revisions"`
		Features     []string `json:"features"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.Price < 0 || req.DeliveryDays < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, non-negative price and delivery_days >= 1 are required"})
	}
	if req.Revisions < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "revisions must be >= 0 (0 = unlimited)"})
	}

	p := &Package{
		CreatorID:    uid,
		TemplateID:   req.TemplateID,
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		DeliveryDays: req.DeliveryDays,
		Revisions:    req.Revisions,
		Features:     req.Features,
		IsActive:     true,
	}
	if err := h.store.CreatePackage(c.Request().Context(), p); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create package"})
	}

	return c.JSON(http.StatusCreated, echo.Map{"package_id": p.ID, "message": "package created successfully"})
}

// ListPackages returns all active packages
// GET /catalog/packages
func (h *Handler) ListPackages(c echo.Context) error {
	items, err := h.store.ListActive(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch packages"})
	}
	return c.JSON(http.StatusOK, echo.Map{"packages": items})
}

// GetPackage returns a single package by id
// GET /catalog/packages/:id
func (h *Handler) GetPackage(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing package id"})
	}
	p, err := h.store.GetPackage(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "package not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch package"})
	}
	return c.JSON(http.StatusOK, p)
}
