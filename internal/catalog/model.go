package catalog

import "time"

// PackageStats are aggregate counters maintained by the order workflow.
type PackageStats struct {
	Orders    int     `json:"orders"`
	Completed int     `json:"completed"`
	Revenue   float64 `json:"revenue"`
}

// Package is a creator-published service offer that seeds new orders.
type Package struct {
	ID           string       `json:"id"`
	CreatorID    string       `json:"creator_id"`
	TemplateID   string       `json:"template_id,omitempty"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Price        float64      `json:"price"`
	DeliveryDays int          `json:"delivery_days"`
	Revisions    int          `json:"revisions"` // 0 = unlimited
	Features     []string     `json:"features,omitempty"`
	IsActive     bool         `json:"is_active"`
	Stats        PackageStats `json:"stats"`
	CreatedAt    time.Time    `json:"created_at"`
}
