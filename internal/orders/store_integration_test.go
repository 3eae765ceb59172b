package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/templhub/backend/internal/db"
)

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	db.EnsureSchema(pool)
	return pool
}

type seeded struct {
	buyerID   string
	creatorID string
	packageID string
}

func seedCatalog(t *testing.T, pool *pgxpool.Pool) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{
		buyerID:   uuid.NewString(),
		creatorID: uuid.NewString(),
		packageID: uuid.NewString(),
	}

	for i, u := range []struct{ id, name, email, role string }{
		{s.buyerID, "Test Buyer", "buyer@test.local", "buyer"},
		{s.creatorID, "Test Creator", "creator@test.local", "creator"},
	} {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password, role) VALUES ($1,$2,$3,'x',$4)`,
			u.id, u.name, fmt.Sprintf("%d-%s", i, u.email), u.role)
		require.NoError(t, err)
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO service_packages (id, creator_id, name, price, delivery_days, revisions)
		 VALUES ($1, $2, 'Landing page setup', 150, 5, 2)`,
		s.packageID, s.creatorID)
	require.NoError(t, err)
	return s
}

func seedOrder(seed seeded) *ServiceOrder {
	now := time.Now().UTC().Truncate(time.Microsecond)
	fee, payout := SplitFee(150, PackageFeeRate)
	o := &ServiceOrder{
		ID:            uuid.NewString(),
		OrderNumber:   fmt.Sprintf("ORD-%d", time.Now().UnixNano()),
		BuyerID:       seed.buyerID,
		CreatorID:     seed.creatorID,
		PackageID:     seed.packageID,
		PackageName:   "Landing page setup",
		Price:         150,
		DeliveryDays:  5,
		Revisions:     2,
		PlatformFee:   fee,
		CreatorPayout: payout,
		Requirements:  "match our brand colors",
		Attachments:   []string{"brand.pdf"},
		DueDate:       now.AddDate(0, 0, 5),
		Status:        StatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.appendActivity(ActionOrderCreated, seed.buyerID, "Order placed for Landing page setup", now)
	return o
}

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	seed := seedCatalog(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	o := seedOrder(seed)
	require.NoError(t, store.Insert(ctx, o))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	assert.Equal(t, o.BuyerID, got.BuyerID)
	assert.Equal(t, StatusRequested, got.Status)
	assert.Equal(t, []string{"brand.pdf"}, got.Attachments)
	assert.InDelta(t, 30.0, got.PlatformFee, 1e-9)
	assert.InDelta(t, 120.0, got.CreatorPayout, 1e-9)
	require.Len(t, got.ActivityLog, 1)
	assert.Equal(t, ActionOrderCreated, got.ActivityLog[0].Action)
	assert.Nil(t, got.Dispute)

	_, err = store.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreConditionalSave(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	seed := seedCatalog(t, pool)
	store := NewStore(pool)
	engine := NewEngine()
	ctx := context.Background()

	o := seedOrder(seed)
	require.NoError(t, store.Insert(ctx, o))

	// Two readers load the same snapshot.
	first, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, engine.FulfillerTransition(first, seed.creatorID, StatusAccepted, nil))
	require.NoError(t, store.Save(ctx, first, StatusRequested))

	// The loser's expectation no longer matches the row.
	require.NoError(t, engine.FulfillerTransition(second, seed.creatorID, StatusRejected, nil))
	err = store.Save(ctx, second, StatusRequested)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status, "losing write must not land")
	require.Len(t, got.ActivityLog, 2)
}

func TestStoreDisputePersistence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	seed := seedCatalog(t, pool)
	store := NewStore(pool)
	engine := NewEngine()
	ctx := context.Background()

	o := seedOrder(seed)
	o.Status = StatusDelivered
	require.NoError(t, store.Insert(ctx, o))

	loaded, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NoError(t, engine.OpenDispute(loaded, seed.buyerID, "wrong theme"))
	require.NoError(t, store.Save(ctx, loaded, StatusDelivered))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Dispute)
	assert.Equal(t, "wrong theme", got.Dispute.Reason)
	assert.Equal(t, seed.buyerID, got.Dispute.OpenedBy)
	assert.Equal(t, StatusDisputed, got.Status)
}

func TestStoreCompleteAndSettle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	seed := seedCatalog(t, pool)
	store := NewStore(pool)
	engine := NewEngine()
	ctx := context.Background()

	o := seedOrder(seed)
	o.Status = StatusDelivered
	require.NoError(t, store.Insert(ctx, o))

	loaded, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NoError(t, engine.CompleteByBuyer(loaded, seed.buyerID))
	require.NoError(t, store.CompleteAndSettle(ctx, loaded, StatusDelivered))

	var completed int
	var revenue float64
	err = pool.QueryRow(ctx,
		`SELECT stats_completed, stats_revenue FROM service_packages WHERE id=$1`,
		seed.packageID).Scan(&completed, &revenue)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.InDelta(t, 150.0, revenue, 1e-9)

	// A conflicting settle writes neither the order nor the stats.
	err = store.CompleteAndSettle(ctx, loaded, StatusDelivered)
	assert.ErrorIs(t, err, ErrConflict)
	err = pool.QueryRow(ctx,
		`SELECT stats_completed FROM service_packages WHERE id=$1`, seed.packageID).Scan(&completed)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
}

func TestStoreListings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	seed := seedCatalog(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	a := seedOrder(seed)
	require.NoError(t, store.Insert(ctx, a))

	b := seedOrder(seed)
	b.IsGenericRequest = true
	b.PackageID = ""
	b.Status = StatusAccepted
	require.NoError(t, store.Insert(ctx, b))

	mine, err := store.ListForBuyer(ctx, seed.buyerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := store.ListForFulfiller(ctx, seed.creatorID, StatusAccepted)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, b.ID, assigned[0].ID)

	generic, err := store.ListAll(ctx, ListFilters{OnlyGeneric: true})
	require.NoError(t, err)
	require.Len(t, generic, 1)
	assert.Equal(t, b.ID, generic[0].ID)

	all, err := store.ListAll(ctx, ListFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
