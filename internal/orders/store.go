package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists service orders. The aggregate is one row; owned
// collections (activity log, messages, dispute, file lists) live in
// JSONB columns so every transition is a single-row write.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const orderColumns = `
    id, order_number, buyer_id, creator_id, COALESCE(assigned_creator_id::text,''),
    COALESCE(package_id::text,''), is_generic_request, package_name,
    price, delivery_days, revisions, revisions_used, platform_fee, creator_payout,
    requirements, attachments, delivery_files, COALESCE(delivery_note,''), delivered_at,
    due_date, accepted_at, completed_at,
    is_paid, paid_at, payment_released,
    dispute, activity_log, messages,
    status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*ServiceOrder, error) {
	var o ServiceOrder
	var attachments, deliveryFiles, dispute, activity, messages []byte
	var status string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.CreatorID, &o.AssignedCreatorID,
		&o.PackageID, &o.IsGenericRequest, &o.PackageName,
		&o.Price, &o.DeliveryDays, &o.Revisions, &o.RevisionsUsed, &o.PlatformFee, &o.CreatorPayout,
		&o.Requirements, &attachments, &deliveryFiles, &o.DeliveryNote, &o.DeliveredAt,
		&o.DueDate, &o.AcceptedAt, &o.CompletedAt,
		&o.IsPaid, &o.PaidAt, &o.PaymentReleased,
		&dispute, &activity, &messages,
		&status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if len(attachments) > 0 {
		_ = json.Unmarshal(attachments, &o.Attachments)
	}
	if len(deliveryFiles) > 0 {
		_ = json.Unmarshal(deliveryFiles, &o.DeliveryFiles)
	}
	if len(dispute) > 0 {
		_ = json.Unmarshal(dispute, &o.Dispute)
	}
	if len(activity) > 0 {
		_ = json.Unmarshal(activity, &o.ActivityLog)
	}
	if len(messages) > 0 {
		_ = json.Unmarshal(messages, &o.Messages)
	}
	return &o, nil
}

func marshalOwned(o *ServiceOrder) (attachments, deliveryFiles, dispute, activity, messages []byte, err error) {
	if attachments, err = json.Marshal(o.Attachments); err != nil {
		return
	}
	if deliveryFiles, err = json.Marshal(o.DeliveryFiles); err != nil {
		return
	}
	if o.Dispute != nil {
		if dispute, err = json.Marshal(o.Dispute); err != nil {
			return
		}
	}
	if activity, err = json.Marshal(o.ActivityLog); err != nil {
		return
	}
	messages, err = json.Marshal(o.Messages)
	return
}

func (s *Store) Insert(ctx context.Context, o *ServiceOrder) error {
	attachments, deliveryFiles, dispute, activity, messages, err := marshalOwned(o)
	if err != nil {
		return fmt.Errorf("marshal order collections: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO service_orders
            (id, order_number, buyer_id, creator_id, assigned_creator_id,
             package_id, is_generic_request, package_name,
             price, delivery_days, revisions, revisions_used, platform_fee, creator_payout,
             requirements, attachments, delivery_files, delivery_note, delivered_at,
             due_date, accepted_at, completed_at,
             is_paid, paid_at, payment_released,
             dispute, activity_log, messages,
             status, created_at, updated_at)
         VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13,$14,
                 $15,$16,$17,NULLIF($18,''),$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)`,
		o.ID, o.OrderNumber, o.BuyerID, o.CreatorID, o.AssignedCreatorID,
		o.PackageID, o.IsGenericRequest, o.PackageName,
		o.Price, o.DeliveryDays, o.Revisions, o.RevisionsUsed, o.PlatformFee, o.CreatorPayout,
		o.Requirements, attachments, deliveryFiles, o.DeliveryNote, o.DeliveredAt,
		o.DueDate, o.AcceptedAt, o.CompletedAt,
		o.IsPaid, o.PaidAt, o.PaymentReleased,
		dispute, activity, messages,
		string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*ServiceOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM service_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	return o, nil
}

const saveOrderSQL = `
    UPDATE service_orders SET
        assigned_creator_id = NULLIF($2,''),
        price = $3, platform_fee = $4, creator_payout = $5,
        revisions_used = $6,
        delivery_files = $7, delivery_note = NULLIF($8,''), delivered_at = $9,
        accepted_at = $10, completed_at = $11,
        is_paid = $12, paid_at = $13, payment_released = $14,
        dispute = $15, activity_log = $16, messages = $17,
        status = $18, updated_at = $19
    WHERE id = $1 AND status = $20`

// Save writes the mutated aggregate back, conditional on the status the
// order had when it was loaded. Zero rows affected means a concurrent
// transition won; the caller gets ErrConflict and nothing is written.
func (s *Store) Save(ctx context.Context, o *ServiceOrder, expect Status) error {
	_, deliveryFiles, dispute, activity, messages, err := marshalOwned(o)
	if err != nil {
		return fmt.Errorf("marshal order collections: %w", err)
	}
	ct, err := s.pool.Exec(ctx, saveOrderSQL,
		o.ID, o.AssignedCreatorID,
		o.Price, o.PlatformFee, o.CreatorPayout,
		o.RevisionsUsed,
		deliveryFiles, o.DeliveryNote, o.DeliveredAt,
		o.AcceptedAt, o.CompletedAt,
		o.IsPaid, o.PaidAt, o.PaymentReleased,
		dispute, activity, messages,
		string(o.Status), o.UpdatedAt, string(expect),
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteAndSettle persists a completion together with the originating
// package's stats counters in one transaction, so the "one transition,
// one log line" atomicity extends to the revenue bookkeeping.
func (s *Store) CompleteAndSettle(ctx context.Context, o *ServiceOrder, expect Status) error {
	_, deliveryFiles, dispute, activity, messages, err := marshalOwned(o)
	if err != nil {
		return fmt.Errorf("marshal order collections: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, saveOrderSQL,
		o.ID, o.AssignedCreatorID,
		o.Price, o.PlatformFee, o.CreatorPayout,
		o.RevisionsUsed,
		deliveryFiles, o.DeliveryNote, o.DeliveredAt,
		o.AcceptedAt, o.CompletedAt,
		o.IsPaid, o.PaidAt, o.PaymentReleased,
		dispute, activity, messages,
		string(o.Status), o.UpdatedAt, string(expect),
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}

	if o.PackageID != "" {
		_, err = tx.Exec(ctx,
			`UPDATE service_packages
             SET stats_completed = stats_completed + 1, stats_revenue = stats_revenue + $2
             WHERE id = $1`,
			o.PackageID, o.Price,
		)
		if err != nil {
			return fmt.Errorf("settle package stats: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) listQuery(ctx context.Context, where string, args ...any) ([]ServiceOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM service_orders `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var items []ServiceOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		items = append(items, *o)
	}
	return items, rows.Err()
}

func (s *Store) ListForBuyer(ctx context.Context, buyerID string) ([]ServiceOrder, error) {
	return s.listQuery(ctx, `WHERE buyer_id = $1`, buyerID)
}

func (s *Store) ListForFulfiller(ctx context.Context, fulfillerID string, status Status) ([]ServiceOrder, error) {
	if status != "" {
		return s.listQuery(ctx,
			`WHERE (creator_id = $1 OR assigned_creator_id = $1) AND status = $2`,
			fulfillerID, string(status))
	}
	return s.listQuery(ctx, `WHERE creator_id = $1 OR assigned_creator_id = $1`, fulfillerID)
}

// ListFilters narrows the admin listing.
type ListFilters struct {
	Status      Status
	OnlyGeneric bool
}

func (s *Store) ListAll(ctx context.Context, f ListFilters) ([]ServiceOrder, error) {
	where := `WHERE TRUE`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.OnlyGeneric {
		where += ` AND is_generic_request`
	}
	return s.listQuery(ctx, where, args...)
}
