package order

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodhub/internal/auth"
	"foodhub/internal/cache"
	"foodhub/internal/logger"
	"foodhub/internal/models"
)

type fakeCatalog struct {
	items   map[string]models.MenuItem
	err     error
	failing map[string]error
	calls   atomic.Int32
}

func (c *fakeCatalog) GetItem(ctx context.Context, itemID string) (models.MenuItem, error) {
	c.calls.Add(1)
	if c.err != nil {
		return models.MenuItem{}, c.err
	}
	if err, ok := c.failing[itemID]; ok {
		return models.MenuItem{}, err
	}
	item, ok := c.items[itemID]
	if !ok {
		return models.MenuItem{}, fmt.Errorf("%w: %s", models.ErrItemNotFound, itemID)
	}
	return item, nil
}

type fakeDirectory map[string]models.Vendor

func (d fakeDirectory) GetVendor(_ context.Context, vendorID string) (models.Vendor, error) {
	v, ok := d[vendorID]
	if !ok {
		return models.Vendor{}, fmt.Errorf("%w: %s", models.ErrVendorNotFound, vendorID)
	}
	return v, nil
}

type published struct {
	topic   string
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(_ context.Context, topic, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{topic: topic, event: event, payload: payload})
}

func (n *recordingNotifier) all() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.events...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[string]models.MenuItem{
		"item1":    {ID: "item1", VendorID: "vendorA", Name: "Ramen", Price: price("5.00"), Available: true},
		"item2":    {ID: "item2", VendorID: "vendorB", Name: "Burger", Price: price("12.99"), Available: true},
		"item3":    {ID: "item3", VendorID: "vendorA", Name: "Gyoza", Price: price("3.50"), Available: true},
		"sold-out": {ID: "sold-out", VendorID: "vendorB", Name: "Shake", Price: price("4.25"), Available: false},
	}}
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	notifier *recordingNotifier
	catalog  *fakeCatalog
	idem     *cache.MemoryCache
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		notifier: &recordingNotifier{},
		catalog:  newCatalog(),
		idem:     cache.NewMemoryCache("test"),
	}
	log := logger.NewWithWriter("test", &bytes.Buffer{})
	pricer := NewPricer(f.catalog, nil, false, 4)
	f.svc = NewService(f.store, pricer, f.notifier, f.idem, opts, log)
	return f
}

func scenarioRequest() *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		HubID:        "hub-1",
		CustomerName: "Ana",
		TableInfo:    "T4",
		VendorOrders: []models.VendorOrderRequest{
			{VendorID: "vendorA", Items: []models.OrderItemRequest{{MenuItemID: "item1", Quantity: 2}}},
			{VendorID: "vendorB", Items: []models.OrderItemRequest{{MenuItemID: "item2", Quantity: 1}}},
		},
	}
}

var (
	vendorA = auth.Caller{UserID: "u-a", Role: auth.RoleVendor, VendorID: "vendorA"}
	vendorB = auth.Caller{UserID: "u-b", Role: auth.RoleStaff, VendorID: "vendorB"}
)

func TestCreateOrder_SplitsAndPricesPerVendor(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	o, replayed, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.NotEmpty(t, o.ID)
	assert.True(t, o.TotalAmount.Equal(price("22.99")), "total %s", o.TotalAmount)
	assert.Equal(t, models.OverallPending, o.Status)
	assert.Equal(t, 1, o.Version)
	require.Len(t, o.VendorOrders, 2)

	a, b := o.VendorOrders[0], o.VendorOrders[1]
	assert.Equal(t, "vendorA", a.VendorID)
	assert.True(t, a.Subtotal.Equal(price("10.00")))
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, "Ramen", a.Items[0].Name)
	assert.Equal(t, "vendorB", b.VendorID)
	assert.True(t, b.Subtotal.Equal(price("12.99")))
	assert.Equal(t, models.StatusPending, b.Status)

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)

	events := f.notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, "vendor:vendorA", events[0].topic)
	assert.Equal(t, "vendor:vendorB", events[1].topic)
	for _, e := range events {
		assert.Equal(t, models.EventNewOrder, e.event)
	}
	msg := events[0].payload.(models.NewOrderMessage)
	assert.Equal(t, o.ID, msg.OrderID)
	assert.Equal(t, "vendorA", msg.VendorOrder.VendorID)
	assert.Equal(t, "T4", msg.TableInfo)

	history, err := f.store.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, systemActor, history[0].ChangedBy)
}

func TestCreateOrder_StatusAggregation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req-1")
	require.NoError(t, err)

	o, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "preparing", vendorA, "req-2")
	require.NoError(t, err)
	assert.Equal(t, models.OverallInProgress, o.Status)

	o, err = f.svc.UpdateStatus(ctx, o.ID, "vendorB", "completed", vendorB, "req-3")
	require.NoError(t, err)
	assert.Equal(t, models.OverallInProgress, o.Status, "vendorA is still preparing")

	o, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "completed", vendorA, "req-4")
	require.NoError(t, err)
	assert.Equal(t, models.OverallCompleted, o.Status)
	assert.Equal(t, 4, o.Version)
	assert.True(t, o.TotalAmount.Equal(price("22.99")))

	so, ok := o.SubOrder("vendorA")
	require.True(t, ok)
	assert.Equal(t, "u-a", so.UpdatedBy)
	require.NotNil(t, so.UpdatedAt)

	history, err := f.svc.store.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 5)
	assert.Equal(t, models.StatusCompleted, history[4].Status)
	assert.Equal(t, "vendorA", history[4].VendorID)
}

func TestCreateOrder_UnknownItemPersistsNothing(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	req := scenarioRequest()
	req.VendorOrders[1].Items = append(req.VendorOrders[1].Items, models.OrderItemRequest{MenuItemID: "nope", Quantity: 1})

	_, _, err := f.svc.CreateOrder(ctx, req, "", "req-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrItemNotFound)

	orders, err := f.store.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notifier.all())
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.CreateOrderRequest)
		wantErr error
	}{
		{
			name: "unavailable item",
			mutate: func(r *models.CreateOrderRequest) {
				r.VendorOrders[1].Items[0].MenuItemID = "sold-out"
			},
			wantErr: models.ErrItemUnavailable,
		},
		{
			name: "item listed under the wrong vendor",
			mutate: func(r *models.CreateOrderRequest) {
				r.VendorOrders[0].Items[0].MenuItemID = "item2"
			},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "quantity out of range",
			mutate: func(r *models.CreateOrderRequest) {
				r.VendorOrders[0].Items[0].Quantity = 0
			},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "no vendor orders",
			mutate: func(r *models.CreateOrderRequest) {
				r.VendorOrders = nil
			},
			wantErr: models.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			req := scenarioRequest()
			tt.mutate(req)

			_, _, err := f.svc.CreateOrder(context.Background(), req, "", "req")
			assert.ErrorIs(t, err, tt.wantErr)

			orders, err := f.store.List(context.Background(), models.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestCreateOrder_LargeQuantities(t *testing.T) {
	f := newFixture(t, Options{})
	req := scenarioRequest()
	req.VendorOrders[0].Items[0].Quantity = 100
	req.TableInfo = "Terrace, second row by the window, next to the heater"

	o, _, err := f.svc.CreateOrder(context.Background(), req, "", "req")
	require.NoError(t, err)
	assert.True(t, o.VendorOrders[0].Subtotal.Equal(price("500.00")))
	assert.True(t, o.TotalAmount.Equal(price("512.99")))
	assert.Equal(t, req.TableInfo, o.TableInfo)
}

func TestCreateOrder_ValidationHappensBeforeLookups(t *testing.T) {
	f := newFixture(t, Options{})
	req := scenarioRequest()
	req.CustomerName = ""

	_, _, err := f.svc.CreateOrder(context.Background(), req, "", "req")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, int32(0), f.catalog.calls.Load())
}

func TestCreateOrder_CatalogFailureIsInternal(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.err = errors.New("connection refused")

	_, _, err := f.svc.CreateOrder(context.Background(), scenarioRequest(), "", "req")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrItemNotFound)
	assert.NotErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateOrder_UnknownItemWinsOverLookupFailure(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, Options{})
		f.catalog.failing = map[string]error{"item1": errors.New("connection reset")}

		req := scenarioRequest()
		req.VendorOrders[1].Items[0].MenuItemID = "ghost"

		_, _, err := f.svc.CreateOrder(context.Background(), req, "", "req")
		require.ErrorIs(t, err, models.ErrItemNotFound)
		assert.Contains(t, err.Error(), "ghost")
		assert.Equal(t, int32(2), f.catalog.calls.Load(), "every line is looked up")
	}
}

func TestCreateOrder_FirstLookupFailureInRequestOrder(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, Options{})
		f.catalog.failing = map[string]error{
			"item1": errors.New("connection reset"),
			"item2": errors.New("timeout"),
		}

		_, _, err := f.svc.CreateOrder(context.Background(), scenarioRequest(), "", "req")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "menu item item1")
	}
}

func TestCreateOrder_MergesRepeatedVendorGroups(t *testing.T) {
	f := newFixture(t, Options{})
	req := scenarioRequest()
	req.VendorOrders = append(req.VendorOrders, models.VendorOrderRequest{
		VendorID: "vendorA",
		Items:    []models.OrderItemRequest{{MenuItemID: "item3", Quantity: 2}},
	})

	o, _, err := f.svc.CreateOrder(context.Background(), req, "", "req")
	require.NoError(t, err)

	require.Len(t, o.VendorOrders, 2)
	a := o.VendorOrders[0]
	assert.Equal(t, "vendorA", a.VendorID)
	require.Len(t, a.Items, 2)
	assert.True(t, a.Subtotal.Equal(price("17.00")))
	assert.True(t, o.TotalAmount.Equal(price("29.99")))
	assert.Len(t, f.notifier.all(), 2)
}

func TestCreateOrder_StrictHubCheck(t *testing.T) {
	log := logger.NewWithWriter("test", &bytes.Buffer{})
	dir := fakeDirectory{
		"vendorA": {ID: "vendorA", HubID: "hub-1", IsActive: true},
		"vendorB": {ID: "vendorB", HubID: "hub-2", IsActive: true},
	}
	store := NewMemoryStore()
	svc := NewService(store, NewPricer(newCatalog(), dir, true, 2), &recordingNotifier{}, nil, Options{}, log)

	_, _, err := svc.CreateOrder(context.Background(), scenarioRequest(), "", "req")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	var verr models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "vendorOrders[1].vendorId", verr.Field)

	dir["vendorB"] = models.Vendor{ID: "vendorB", HubID: "hub-1", IsActive: true}
	_, _, err = svc.CreateOrder(context.Background(), scenarioRequest(), "", "req")
	assert.NoError(t, err)
}

func TestCreateOrder_Idempotency(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, replayed, err := f.svc.CreateOrder(ctx, scenarioRequest(), "key-1", "req-1")
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := f.svc.CreateOrder(ctx, scenarioRequest(), "key-1", "req-2")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	orders, err := f.store.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Len(t, f.notifier.all(), 2, "replay does not notify vendors again")
}

func TestCreateOrder_IdempotencyInFlight(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	key := f.idem.GenerateKey("checkout", "key-1")
	_, reserved, err := f.idem.Reserve(ctx, key, "order-being-created", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	_, _, err = f.svc.CreateOrder(ctx, scenarioRequest(), "key-1", "req")
	assert.ErrorIs(t, err, models.ErrIdempotencyConflict)
}

func TestCreateOrder_FailedCheckoutReleasesKey(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	bad := scenarioRequest()
	bad.VendorOrders[0].Items[0].MenuItemID = "nope"
	_, _, err := f.svc.CreateOrder(ctx, bad, "key-1", "req-1")
	require.ErrorIs(t, err, models.ErrItemNotFound)

	o, replayed, err := f.svc.CreateOrder(ctx, scenarioRequest(), "key-1", "req-2")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEmpty(t, o.ID)
}

type ttlRecorder struct {
	*cache.MemoryCache
	reserveTTL time.Duration
	confirmTTL time.Duration
}

func (r *ttlRecorder) Reserve(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	r.reserveTTL = ttl
	return r.MemoryCache.Reserve(ctx, key, value, ttl)
}

func (r *ttlRecorder) Confirm(ctx context.Context, key, value string, ttl time.Duration) error {
	r.confirmTTL = ttl
	return r.MemoryCache.Confirm(ctx, key, value, ttl)
}

func TestCreateOrder_KeyHeldBrieflyUntilSaved(t *testing.T) {
	ctx := context.Background()
	idem := &ttlRecorder{MemoryCache: cache.NewMemoryCache("test")}
	svc := NewService(NewMemoryStore(), NewPricer(newCatalog(), nil, false, 4), &recordingNotifier{}, idem, Options{
		IdempotencyTTL: 24 * time.Hour,
		PendingTTL:     30 * time.Second,
	}, logger.NewWithWriter("test", &bytes.Buffer{}))

	bad := scenarioRequest()
	bad.VendorOrders[0].Items[0].MenuItemID = "nope"
	_, _, err := svc.CreateOrder(ctx, bad, "key-1", "req-1")
	require.ErrorIs(t, err, models.ErrItemNotFound)
	assert.Equal(t, 30*time.Second, idem.reserveTTL)
	assert.Zero(t, idem.confirmTTL, "failed checkout never gets the long ttl")

	o, _, err := svc.CreateOrder(ctx, scenarioRequest(), "key-1", "req-2")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, idem.confirmTTL)

	existing, reserved, err := idem.MemoryCache.Reserve(ctx, idem.GenerateKey("checkout", "key-1"), "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, o.ID, existing)
}

func TestUpdateStatus_Authorization(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
	require.NoError(t, err)
	f.notifier.reset()

	callers := map[string]auth.Caller{
		"anonymous":         {},
		"customer":          {Role: auth.RoleCustomer, UserID: "c1"},
		"admin":             {Role: auth.RoleAdmin},
		"other vendor":      vendorB,
		"vendor without id": {Role: auth.RoleVendor},
	}
	for name, caller := range callers {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.UpdateStatus(ctx, o.ID, "vendorA", "ready", caller, "req")
			assert.ErrorIs(t, err, models.ErrForbidden)
		})
	}

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Empty(t, f.notifier.all())
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "delivered", vendorA, "req")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.UpdateStatus(ctx, "missing", "vendorA", "ready", vendorA, "req")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	vendorC := auth.Caller{Role: auth.RoleVendor, VendorID: "vendorC"}
	_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorC", "ready", vendorC, "req")
	assert.ErrorIs(t, err, models.ErrSubOrderNotFound)
}

func TestUpdateStatus_NotifiesOrderAndVendorTopics(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
	require.NoError(t, err)
	f.notifier.reset()

	_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorB", "ready", vendorB, "req")
	require.NoError(t, err)

	events := f.notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.OrderTopic(o.ID), events[0].topic)
	assert.Equal(t, models.VendorTopic("vendorB"), events[1].topic)

	msg := events[0].payload.(models.StatusChangeMessage)
	assert.Equal(t, models.EventStatusChange, events[0].event)
	assert.Equal(t, models.StatusReady, msg.Status)
	assert.Equal(t, models.StatusPending, msg.PreviousStatus)
	assert.Equal(t, models.OverallInProgress, msg.OverallStatus)
	assert.Equal(t, "u-b", msg.ChangedBy)
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
	require.NoError(t, err)
	f.notifier.reset()

	got, err := f.svc.UpdateStatus(ctx, o.ID, "vendorA", "pending", vendorA, "req")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, f.notifier.all())
}

func TestUpdateStatus_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("permissive by default", func(t *testing.T) {
		f := newFixture(t, Options{})
		o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "completed", vendorA, "req")
		require.NoError(t, err)
		o, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "pending", vendorA, "req")
		require.NoError(t, err)

		so, _ := o.SubOrder("vendorA")
		assert.Equal(t, models.StatusPending, so.Status)
	})

	t.Run("enforced", func(t *testing.T) {
		f := newFixture(t, Options{EnforceTransitions: true})
		o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "ready", vendorA, "req")
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "preparing", vendorA, "req")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "cancelled", vendorA, "req")
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, o.ID, "vendorA", "completed", vendorA, "req")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		stored, err := f.store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.Version)
	})
}

func TestUpdateStatus_ConcurrentVendorsNeverLoseUpdates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, scenarioRequest(), "", "req")
	require.NoError(t, err)

	steps := []string{"preparing", "ready", "completed"}
	var wg sync.WaitGroup
	for _, caller := range []auth.Caller{vendorA, vendorB} {
		wg.Add(1)
		go func(c auth.Caller) {
			defer wg.Done()
			for _, s := range steps {
				_, err := f.svc.UpdateStatus(ctx, o.ID, c.VendorID, s, c, "req")
				assert.NoError(t, err)
			}
		}(caller)
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OverallCompleted, stored.Status)
	assert.Equal(t, 1+2*len(steps), stored.Version)

	history, err := f.store.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2+2*len(steps))
}
