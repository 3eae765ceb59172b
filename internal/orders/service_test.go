package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templhub/backend/internal/catalog"
	"github.com/templhub/backend/internal/users"
)

type fakeStore struct {
	orders  map[string]*ServiceOrder
	settled []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]*ServiceOrder{}}
}

func (f *fakeStore) put(o *ServiceOrder) {
	cp := *o
	f.orders[o.ID] = &cp
}

func (f *fakeStore) Insert(_ context.Context, o *ServiceOrder) error {
	f.put(o)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*ServiceOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) Save(_ context.Context, o *ServiceOrder, expect Status) error {
	cur, ok := f.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expect {
		return ErrConflict
	}
	f.put(o)
	return nil
}

func (f *fakeStore) CompleteAndSettle(ctx context.Context, o *ServiceOrder, expect Status) error {
	if err := f.Save(ctx, o, expect); err != nil {
		return err
	}
	f.settled = append(f.settled, o.ID)
	return nil
}

func (f *fakeStore) ListForBuyer(_ context.Context, buyerID string) ([]ServiceOrder, error) {
	var out []ServiceOrder
	for _, o := range f.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListForFulfiller(_ context.Context, fulfillerID string, status Status) ([]ServiceOrder, error) {
	var out []ServiceOrder
	for _, o := range f.orders {
		if !o.IsFulfiller(fulfillerID) {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) ListAll(_ context.Context, filters ListFilters) ([]ServiceOrder, error) {
	var out []ServiceOrder
	for _, o := range f.orders {
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.OnlyGeneric && !o.IsGenericRequest {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

type fakeCatalog struct {
	packages   map[string]*catalog.Package
	templates  map[string]bool
	increments []string
}

func (f *fakeCatalog) GetPackage(_ context.Context, id string) (*catalog.Package, error) {
	p, ok := f.packages[id]
	if !ok {
		return nil, catalog.ErrPackageNotFound
	}
	return p, nil
}

func (f *fakeCatalog) IncrementOrders(_ context.Context, id string) error {
	f.increments = append(f.increments, id)
	return nil
}

func (f *fakeCatalog) TemplateExists(_ context.Context, id string) (bool, error) {
	return f.templates[id], nil
}

type fakeDirectory struct {
	roles     map[string]string
	poolAdmin string
}

func (f *fakeDirectory) Role(_ context.Context, id string) (string, error) {
	r, ok := f.roles[id]
	if !ok {
		return "", users.ErrUserNotFound
	}
	return r, nil
}

func (f *fakeDirectory) UnassignedPoolAdmin(_ context.Context) (string, error) {
	if f.poolAdmin == "" {
		return "", users.ErrUserNotFound
	}
	return f.poolAdmin, nil
}

type sentEvent struct {
	Recipient string
	Kind      string
	Payload   map[string]any
}

type recordNotifier struct {
	events []sentEvent
}

func (r *recordNotifier) OrderEvent(recipientID, kind string, payload map[string]any) {
	r.events = append(r.events, sentEvent{Recipient: recipientID, Kind: kind, Payload: payload})
}

func (r *recordNotifier) kinds() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	cat    *fakeCatalog
	dir    *fakeDirectory
	notify *recordNotifier
}

func newFixture() *fixture {
	store := newFakeStore()
	cat := &fakeCatalog{
		packages: map[string]*catalog.Package{
			"pkg-1": {
				ID:           "pkg-1",
				CreatorID:    "creator-1",
				Name:         "Landing page setup",
				Price:        150,
				DeliveryDays: 5,
				Revisions:    2,
				IsActive:     true,
			},
		},
		templates: map[string]bool{"tpl-1": true},
	}
	dir := &fakeDirectory{
		roles:     map[string]string{"creator-1": users.RoleCreator, "creator-2": users.RoleCreator, "admin-1": users.RoleAdmin, "buyer-1": users.RoleBuyer},
		poolAdmin: "admin-1",
	}
	notify := &recordNotifier{}
	return &fixture{
		svc:    NewService(store, cat, dir, notify),
		store:  store,
		cat:    cat,
		dir:    dir,
		notify: notify,
	}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots package terms at the standard rate", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "match our brand colors", []string{"brand.pdf"})
		require.NoError(t, err)

		assert.Equal(t, StatusRequested, o.Status)
		assert.Equal(t, "creator-1", o.CreatorID)
		assert.Equal(t, "Landing page setup", o.PackageName)
		assert.InDelta(t, 150.0, o.Price, 1e-9)
		assert.InDelta(t, 30.0, o.PlatformFee, 1e-9)
		assert.InDelta(t, 120.0, o.CreatorPayout, 1e-9)
		assert.Equal(t, 5, o.DeliveryDays)
		assert.Equal(t, 2, o.Revisions)
		assert.Contains(t, o.OrderNumber, "ORD-")
		require.Len(t, o.ActivityLog, 1)
		assert.Equal(t, ActionOrderCreated, o.ActivityLog[0].Action)

		assert.Equal(t, []string{"pkg-1"}, f.cat.increments)
		require.Len(t, f.notify.events, 1)
		assert.Equal(t, "creator-1", f.notify.events[0].Recipient)
		assert.Equal(t, EventOrderNew, f.notify.events[0].Kind)
	})

	t.Run("unknown package", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-missing", "req", nil)
		assert.ErrorIs(t, err, ErrPackageNotFound)
	})

	t.Run("inactive package", func(t *testing.T) {
		f := newFixture()
		f.cat.packages["pkg-1"].IsActive = false
		_, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
		assert.ErrorIs(t, err, ErrPackageUnavailable)
		assert.Empty(t, f.notify.events)
	})
}

func TestCreateGenericRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("pool admin fronts the order", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "adapt the theme to a bakery", nil)
		require.NoError(t, err)

		assert.True(t, o.IsGenericRequest)
		assert.Equal(t, "admin-1", o.CreatorID)
		assert.Equal(t, "Custom request", o.PackageName)
		assert.Zero(t, o.Price)
		assert.Zero(t, o.PlatformFee)
		assert.Equal(t, GenericDeliveryDays, o.DeliveryDays)
		assert.Equal(t, GenericRevisions, o.Revisions)

		require.Len(t, f.notify.events, 1)
		assert.Equal(t, "admin-1", f.notify.events[0].Recipient)
	})

	t.Run("unknown template", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-missing", "req", nil)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("no admin in the pool", func(t *testing.T) {
		f := newFixture()
		f.dir.poolAdmin = ""
		_, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "req", nil)
		assert.ErrorIs(t, err, ErrNoFulfillerAvailable)
	})
}

func TestGetOrderVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, o.ID, "buyer-1", false)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, o.ID, "creator-1", false)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, o.ID, "stranger", false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.GetOrder(ctx, o.ID, "stranger", true)
	assert.NoError(t, err, "admins see everything")

	_, err = f.svc.GetOrder(ctx, "missing", "buyer-1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFulfillerTransitionNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)
	f.notify.events = nil

	_, err = f.svc.FulfillerTransition(ctx, o.ID, "creator-1", StatusAccepted, nil)
	require.NoError(t, err)
	_, err = f.svc.FulfillerTransition(ctx, o.ID, "creator-1", StatusInProgress, nil)
	require.NoError(t, err)
	_, err = f.svc.FulfillerTransition(ctx, o.ID, "creator-1", StatusDelivered, &DeliveryPayload{Files: []string{"v1.zip"}})
	require.NoError(t, err)

	assert.Equal(t, []string{EventOrderAccepted, EventOrderStarted, EventOrderDelivered}, f.notify.kinds())
	for _, e := range f.notify.events {
		assert.Equal(t, "buyer-1", e.Recipient)
	}

	saved, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, saved.Status)
	assert.Equal(t, []string{"v1.zip"}, saved.DeliveryFiles)
}

func TestCompleteOrderSettles(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)
	deliver(t, f, o.ID)
	f.notify.events = nil

	done, err := f.svc.CompleteOrder(ctx, o.ID, "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.True(t, done.PaymentReleased)
	assert.Equal(t, []string{o.ID}, f.store.settled, "completion must settle package stats")
	require.Len(t, f.notify.events, 1)
	assert.Equal(t, "creator-1", f.notify.events[0].Recipient)
	assert.Equal(t, EventOrderCompleted, f.notify.events[0].Kind)
}

func TestConcurrentWriteConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)

	// The fake's Save compares against the live row, like the SQL
	// conditional update does.
	err = f.store.Save(ctx, o, StatusRequested)
	assert.NoError(t, err, "matching expectation writes")

	// Another writer moved the order after our read; the stale
	// expectation must surface as a conflict, not a silent overwrite.
	f.store.orders[o.ID].Status = StatusCancelled
	err = f.store.Save(ctx, o, StatusRequested)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, StatusCancelled, f.store.orders[o.ID].Status)
}

func TestDisputeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)
	deliver(t, f, o.ID)
	f.notify.events = nil

	_, err = f.svc.OpenDispute(ctx, o.ID, "buyer-1", "delivered the wrong theme")
	require.NoError(t, err)

	resolved, err := f.svc.ResolveDispute(ctx, o.ID, "admin-1", "creator delivered off-brief", OutcomeRefund)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, resolved.Status)
	assert.False(t, resolved.PaymentReleased)

	// dispute:opened to the creator, dispute:resolved to both sides
	assert.Equal(t, []string{EventDisputeOpened, EventDisputeResolved, EventDisputeResolved}, f.notify.kinds())
	assert.Equal(t, "creator-1", f.notify.events[0].Recipient)
	assert.ElementsMatch(t,
		[]string{"buyer-1", "creator-1"},
		[]string{f.notify.events[1].Recipient, f.notify.events[2].Recipient})
	assert.Equal(t, "full refund to buyer", f.notify.events[1].Payload["outcome"])
}

func TestReassign(t *testing.T) {
	ctx := context.Background()

	t.Run("generic request gets priced and fast-forwarded", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "req", nil)
		require.NoError(t, err)
		f.notify.events = nil

		price := 300.0
		got, err := f.svc.Reassign(ctx, o.ID, "creator-2", "admin-1", &price)
		require.NoError(t, err)

		assert.Equal(t, "creator-2", got.AssignedCreatorID)
		assert.Equal(t, StatusAccepted, got.Status)
		assert.InDelta(t, 90.0, got.PlatformFee, 1e-9)
		assert.InDelta(t, 210.0, got.CreatorPayout, 1e-9)

		assert.Equal(t, []string{EventOrderAssigned, EventOrderAssigned}, f.notify.kinds())
		assert.ElementsMatch(t,
			[]string{"creator-2", "buyer-1"},
			[]string{f.notify.events[0].Recipient, f.notify.events[1].Recipient})
	})

	t.Run("assignee must be a creator or admin", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "req", nil)
		require.NoError(t, err)

		_, err = f.svc.Reassign(ctx, o.ID, "buyer-1", "admin-1", nil)
		assert.ErrorIs(t, err, ErrInvalidFulfiller)

		_, err = f.svc.Reassign(ctx, o.ID, "nobody", "admin-1", nil)
		assert.ErrorIs(t, err, ErrInvalidFulfiller)
	})

	t.Run("assigned creator can then work the order", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "req", nil)
		require.NoError(t, err)

		price := 120.0
		_, err = f.svc.Reassign(ctx, o.ID, "creator-2", "admin-1", &price)
		require.NoError(t, err)

		_, err = f.svc.FulfillerTransition(ctx, o.ID, "creator-2", StatusInProgress, nil)
		assert.NoError(t, err)
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)
	f.notify.events = nil

	got, err := f.svc.SendMessage(ctx, o.ID, "buyer-1", "any update?", nil)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "buyer-1", got.Messages[0].SenderID)

	require.Len(t, f.notify.events, 1)
	assert.Equal(t, "creator-1", f.notify.events[0].Recipient)
	assert.Equal(t, EventMessageNew, f.notify.events[0].Kind)
	assert.Equal(t, "any update?", f.notify.events[0].Payload["message"])

	_, err = f.svc.SendMessage(ctx, o.ID, "stranger", "hi", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMarkPaidService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, o.ID, "creator-1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := f.svc.MarkPaid(ctx, o.ID, "buyer-1")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)

	_, err = f.svc.MarkPaid(ctx, o.ID, "buyer-1")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.CreateOrder(ctx, "buyer-1", "pkg-1", "req", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateGenericRequest(ctx, "buyer-1", "tpl-1", "req", nil)
	require.NoError(t, err)

	mine, err := f.svc.ListForBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := f.svc.ListForFulfiller(ctx, "creator-1", "")
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	_, err = f.svc.ListForFulfiller(ctx, "creator-1", Status("archived"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	generic, err := f.svc.ListAll(ctx, ListFilters{OnlyGeneric: true})
	require.NoError(t, err)
	assert.Len(t, generic, 1)

	requested, err := f.svc.ListAll(ctx, ListFilters{Status: StatusRequested})
	require.NoError(t, err)
	assert.Len(t, requested, 2)
}

func deliver(t *testing.T, f *fixture, orderID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.FulfillerTransition(ctx, orderID, "creator-1", StatusAccepted, nil)
	require.NoError(t, err)
	_, err = f.svc.FulfillerTransition(ctx, orderID, "creator-1", StatusInProgress, nil)
	require.NoError(t, err)
	_, err = f.svc.FulfillerTransition(ctx, orderID, "creator-1", StatusDelivered, &DeliveryPayload{Files: []string{"v1.zip"}})
	require.NoError(t, err)
}
