package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPackageNotFound = errors.New("service package not found")

// Store persists service packages and the minimal template records the
// generic-request path checks against.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreatePackage(ctx context.Context, p *Package) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO service_packages
            (id, creator_id, template_id, name, description, price, delivery_days, revisions, features, is_active, created_at)
         VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CreatorID, p.TemplateID, p.Name, p.Description, p.Price,
		p.DeliveryDays, p.Revisions, features, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id string) (*Package, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, creator_id, COALESCE(template_id::text,''), name, COALESCE(description,''),
                price, delivery_days, revisions, features, is_active,
                stats_orders, stats_completed, stats_revenue, created_at
         FROM service_packages WHERE id = $1`, id)

	var p Package
	var features []byte
	err := row.Scan(&p.ID, &p.CreatorID, &p.TemplateID, &p.Name, &p.Description,
		&p.Price, &p.DeliveryDays, &p.Revisions, &features, &p.IsActive,
		&p.Stats.Orders, &p.Stats.Completed, &p.Stats.Revenue, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("fetch package: %w", err)
	}
	if len(features) > 0 {
		_ = json.Unmarshal(features, &p.Features)
	}
	return &p, nil
}

func (s *Store) ListActive(ctx context.Context) ([]Package, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, creator_id, COALESCE(template_id::text,''), name, COALESCE(description,''),
                price, delivery_days, revisions, features, is_active,
                stats_orders, stats_completed, stats_revenue, created_at
         FROM service_packages WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var items []Package
	for rows.Next() {
		var p Package
		var features []byte
		if err := rows.Scan(&p.ID, &p.CreatorID, &p.TemplateID, &p.Name, &p.Description,
			&p.Price, &p.DeliveryDays, &p.Revisions, &features, &p.IsActive,
			&p.Stats.Orders, &p.Stats.Completed, &p.Stats.Revenue, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		if len(features) > 0 {
			_ = json.Unmarshal(features, &p.Features)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// IncrementOrders bumps the order counter when the workflow creates an
// order from this package.
func (s *Store) IncrementOrders(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE service_packages SET stats_orders = stats_orders + 1 WHERE id = $1`, id)
	return err
}

// TemplateExists reports whether a published template with the given id
// exists. Generic requests reference a template, not a package.
func (s *Store) TemplateExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1 AND is_published)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check template: %w", err)
	}
	return exists, nil
}
