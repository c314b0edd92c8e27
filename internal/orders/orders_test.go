package orders_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/cart"
	"github.com/Keoroanthony/orderflow/internal/catalog"
	"github.com/Keoroanthony/orderflow/internal/db"
	"github.com/Keoroanthony/orderflow/internal/events"
	"github.com/Keoroanthony/orderflow/internal/models"
	"github.com/Keoroanthony/orderflow/internal/orders"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []decimal.Decimal
	changed []models.OrderStatus
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, _ models.User, _ models.Order, total decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, total)
	return nil
}

func (n *recordingNotifier) StatusChanged(_ context.Context, _ models.User, order models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, order.Status)
	return errors.New("sms gateway down")
}

type fixture struct {
	db       *gorm.DB
	store    cart.Store
	carts    *cart.Service
	svc      *orders.Service
	events   *recordingPublisher
	notifier *recordingNotifier
	admin    access.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	testDB := db.NewTestDB(t)
	store := cart.NewMemoryStore()
	carts := cart.NewService(store, catalog.NewRepository(testDB))
	pub := &recordingPublisher{}
	notes := &recordingNotifier{}

	f := &fixture{
		db:       testDB,
		store:    store,
		carts:    carts,
		svc:      orders.NewService(testDB, carts, pub, notes),
		events:   pub,
		notifier: notes,
	}
	f.admin = f.user(t, "admin", true)
	return f
}

func (f *fixture) user(t *testing.T, name string, admin bool) access.Identity {
	t.Helper()
	u := models.User{Username: name, PasswordHash: "x", IsAdmin: admin}
	require.NoError(t, f.db.Create(&u).Error)
	return access.FromUser(u, "cart-"+name)
}

func (f *fixture) product(t *testing.T, name string, price float64, stock int, limited bool) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: price, Quantity: stock, IsLimited: limited, IsPublished: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) stock(t *testing.T, productID uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, productID).Error)
	return p.Quantity
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

var morning = orders.CheckoutInput{DeliveryInterval: "09:00-12:00"}

func TestCheckoutWidgetScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob", false)
	widget := f.product(t, "Widget", 10, 5, true)

	for i := 0; i < 3; i++ {
		added, err := f.carts.Add(ctx, bob.SessionToken, widget.ID)
		require.NoError(t, err)
		require.True(t, added)
	}

	order, err := f.svc.Checkout(ctx, bob, morning)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, 2, f.stock(t, widget.ID))

	view, err := f.carts.View(ctx, bob.SessionToken)
	require.NoError(t, err)
	assert.True(t, view.Empty())

	// A cart holding more than what is left must not drive stock negative.
	require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{widget.ID: 3}))
	_, err = f.svc.Checkout(ctx, bob, morning)
	assert.ErrorIs(t, err, apperr.ErrStateConflict)
	assert.Equal(t, 2, f.stock(t, widget.ID))
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, int64(1), f.count(t, &models.OrderItem{}))

	items, err := f.store.Load(ctx, bob.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, 3, items[widget.ID], "failed checkout keeps the cart")

	f.svc.Wait()
	assert.Equal(t, []string{events.OrderCreated}, f.events.types())
	require.Len(t, f.notifier.placed, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(f.notifier.placed[0]))
}

func TestCheckoutCreatesOneItemPerProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob", false)
	widget := f.product(t, "Widget", 10, 5, true)
	bolt := f.product(t, "Bolt", 0.5, 0, false)

	require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{widget.ID: 2, bolt.ID: 40}))

	when := time.Date(2026, 5, 1, 14, 30, 0, 0, time.UTC)
	order, err := f.svc.Checkout(ctx, bob, orders.CheckoutInput{DesiredDelivery: &when, Comment: " ring twice "})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, f.db.Preload("Items").First(&stored, order.ID).Error)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "ring twice", stored.Comment)
	require.NotNil(t, stored.DesiredDelivery)
	assert.True(t, when.Equal(*stored.DesiredDelivery))

	assert.Equal(t, 3, f.stock(t, widget.ID))
	assert.Equal(t, 0, f.stock(t, bolt.ID), "unlimited stock is not decremented")
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob", false)
	widget := f.product(t, "Widget", 10, 5, true)
	gadget := f.product(t, "Gadget", 10, 1, true)

	t.Run("Empty cart", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, bob, morning)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("Cart of deleted products only", func(t *testing.T) {
		gone := f.product(t, "Gone", 1, 1, true)
		require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{gone.ID: 1}))
		require.NoError(t, f.db.Delete(&models.Product{}, gone.ID).Error)

		_, err := f.svc.Checkout(ctx, bob, morning)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("No delivery time", func(t *testing.T) {
		require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{widget.ID: 1}))
		_, err := f.svc.Checkout(ctx, bob, orders.CheckoutInput{DeliveryInterval: "  "})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("Anonymous caller", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, access.Identity{}, morning)
		assert.ErrorIs(t, err, apperr.ErrAuthentication)
	})

	t.Run("One short line rolls back every decrement", func(t *testing.T) {
		require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{widget.ID: 2, gadget.ID: 2}))
		_, err := f.svc.Checkout(ctx, bob, morning)
		assert.ErrorIs(t, err, apperr.ErrStateConflict)
		assert.Equal(t, 5, f.stock(t, widget.ID))
		assert.Equal(t, 1, f.stock(t, gadget.ID))
	})

	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.product(t, "Widget", 10, 5, true)

	const buyers = 6
	ids := make([]access.Identity, buyers)
	for i := range ids {
		ids[i] = f.user(t, fmt.Sprintf("buyer%d", i), false)
		require.NoError(t, f.store.Save(ctx, ids[i].SessionToken, cart.Items{widget.ID: 2}))
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(ctx, ids[i], morning)
		}(i)
	}
	wg.Wait()
	f.svc.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrStateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}

	assert.Equal(t, 2, ok)
	assert.Equal(t, buyers-2, conflicts)
	assert.Equal(t, 1, f.stock(t, widget.ID))
	assert.Equal(t, int64(ok), f.count(t, &models.Order{}))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob", false)
	widget := f.product(t, "Widget", 10, 5, true)

	require.NoError(t, f.store.Save(ctx, bob.SessionToken, cart.Items{widget.ID: 1}))
	order, err := f.svc.Checkout(ctx, bob, morning)
	require.NoError(t, err)

	t.Run("Unknown order", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, f.admin, 9999, models.StatusSent, "")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, int64(0), f.count(t, &models.StatusChange{}))
	})

	t.Run("Non-admin changes nothing", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, bob, order.ID, models.StatusShipped, "never")
		assert.ErrorIs(t, err, apperr.ErrAuthorization)

		var stored models.Order
		require.NoError(t, f.db.First(&stored, order.ID).Error)
		assert.Equal(t, models.StatusCreated, stored.Status)
		assert.Equal(t, "09:00-12:00", stored.DeliveryInterval)
	})

	t.Run("Empty status", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, f.admin, order.ID, " ", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("Status wider than its column", func(t *testing.T) {
		long := models.OrderStatus(strings.Repeat("x", models.MaxStatusLen+1))
		_, err := f.svc.UpdateStatus(ctx, f.admin, order.ID, long, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		_, err = f.svc.UpdateStatus(ctx, f.admin, order.ID, models.StatusSent, strings.Repeat("9", models.MaxIntervalLen+1))
		assert.ErrorIs(t, err, apperr.ErrValidation)

		var stored models.Order
		require.NoError(t, f.db.First(&stored, order.ID).Error)
		assert.Equal(t, models.StatusCreated, stored.Status)
		assert.Equal(t, int64(0), f.count(t, &models.StatusChange{}))
	})

	steps := []struct {
		to                         models.OrderStatus
		skipped, backward, unknown bool
	}{
		{to: models.StatusInWork},
		{to: models.StatusShipped, skipped: true},
		{to: models.StatusCreated, backward: true},
		{to: "lost", unknown: true},
	}
	for _, step := range steps {
		updated, err := f.svc.UpdateStatus(ctx, f.admin, order.ID, step.to, "")
		require.NoError(t, err)
		assert.Equal(t, step.to, updated.Status)
	}

	updated, err := f.svc.UpdateStatus(ctx, f.admin, order.ID, models.StatusSent, "after 18:00")
	require.NoError(t, err)
	assert.Equal(t, "after 18:00", updated.DeliveryInterval)

	history, err := f.svc.History(ctx, f.admin, order.ID)
	require.NoError(t, err)
	require.Len(t, history, len(steps)+1)
	for i, step := range steps {
		assert.Equal(t, step.to, history[i].ToStatus)
		assert.Equal(t, step.skipped, history[i].Skipped, "skipped flag for %s", step.to)
		assert.Equal(t, step.backward, history[i].Backward, "backward flag for %s", step.to)
		assert.Equal(t, step.unknown, history[i].Unknown, "unknown flag for %s", step.to)
		assert.Equal(t, f.admin.UserID, history[i].ChangedBy)
	}
	assert.Equal(t, models.StatusCreated, history[0].FromStatus)

	_, err = f.svc.History(ctx, bob, order.ID)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
	_, err = f.svc.History(ctx, f.admin, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Notification failures are logged, not returned.
	f.svc.Wait()
	assert.Len(t, f.notifier.changed, len(steps)+1)
	assert.Equal(t, events.OrderStatusChanged, f.events.types()[len(steps)+1])
}

func TestAttachReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob", false)
	eve := f.user(t, "eve", false)

	order := models.Order{UserID: bob.UserID, Status: models.StatusCreated}
	require.NoError(t, f.db.Create(&order).Error)

	_, err := f.svc.AttachReceipt(ctx, eve, order.ID, "x.pdf")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = f.svc.AttachReceipt(ctx, bob, 9999, "x.pdf")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err := f.svc.AttachReceipt(ctx, bob, order.ID, "abc_receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "abc_receipt.pdf", updated.ReceiptFilename)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "abc_receipt.pdf", stored.ReceiptFilename)
}

func TestParseDesiredDelivery(t *testing.T) {
	for _, raw := range []string{"2026-05-01T14:30", "2026-05-01T14:30:00", "2026-05-01"} {
		got, err := orders.ParseDesiredDelivery(raw)
		require.NoError(t, err, raw)
		require.NotNil(t, got)
		assert.Equal(t, 2026, got.Year())
	}

	got, err := orders.ParseDesiredDelivery("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = orders.ParseDesiredDelivery("tomorrow")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
