package orders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/cart"
	"github.com/Keoroanthony/orderflow/internal/events"
	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "orders").Logger()

// Notifier delivers customer and operations messages. Calls run off the request path.
type Notifier interface {
	OrderPlaced(ctx context.Context, customer models.User, order models.Order, total decimal.Decimal) error
	StatusChanged(ctx context.Context, customer models.User, order models.Order) error
}

type Service struct {
	db       *gorm.DB
	carts    *cart.Service
	events   events.Publisher
	notifier Notifier

	wg sync.WaitGroup
}

func NewService(db *gorm.DB, carts *cart.Service, publisher events.Publisher, notifier Notifier) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{db: db, carts: carts, events: publisher, notifier: notifier}
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

type CheckoutInput struct {
	DesiredDelivery  *time.Time
	DeliveryInterval string
	Comment          string
	ReceiptFilename  string
}

var desiredLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02"}

// ParseDesiredDelivery accepts an HTML datetime-local value, with or without seconds, or a bare date.
// An empty string yields nil.
func ParseDesiredDelivery(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range desiredLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid desired_datetime %q", apperr.ErrValidation, raw)
}

// Checkout turns the caller's cart into an order. The order, its items and every limited-stock
// decrement commit together; a decrement that would take stock below zero aborts all of it.
func (s *Service) Checkout(ctx context.Context, id access.Identity, in CheckoutInput) (*models.Order, error) {
	if err := access.RequireUser(id); err != nil {
		return nil, err
	}

	in.DeliveryInterval = strings.TrimSpace(in.DeliveryInterval)
	if in.DesiredDelivery == nil && in.DeliveryInterval == "" {
		return nil, fmt.Errorf("%w: desired delivery time or interval is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(in.DeliveryInterval) > models.MaxIntervalLen {
		return nil, fmt.Errorf("%w: delivery interval longer than %d characters", apperr.ErrValidation, models.MaxIntervalLen)
	}

	view, err := s.carts.View(ctx, id.SessionToken)
	if err != nil {
		return nil, err
	}
	if view.Empty() {
		return nil, fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	}

	order := models.Order{
		UserID:           id.UserID,
		Status:           models.StatusCreated,
		DesiredDelivery:  in.DesiredDelivery,
		DeliveryInterval: in.DeliveryInterval,
		Comment:          strings.TrimSpace(in.Comment),
		ReceiptFilename:  in.ReceiptFilename,
	}
	for _, line := range view.Lines {
		order.Items = append(order.Items, models.OrderItem{ProductID: line.Product.ID, Quantity: line.Quantity})
	}

	var customer models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&customer, id.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", apperr.ErrAuthentication, id.UserID)
			}
			return err
		}

		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range order.Items {
			if err := reserveStock(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Uint("user_id", id.UserID).Msg("checkout failed")
		return nil, err
	}

	if err := s.carts.Clear(ctx, id.SessionToken); err != nil {
		logger.Error().Err(err).Uint("order_id", order.ID).Msg("failed to clear cart after checkout")
	}

	logger.Info().
		Uint("order_id", order.ID).
		Uint("user_id", id.UserID).
		Int("items", len(order.Items)).
		Str("total", view.Total.StringFixed(2)).
		Msg("order placed")

	s.publish(ctx, events.NewOrderEvent(events.OrderCreated, order))

	total := view.Total
	s.notify(func(ctx context.Context) error {
		return s.notifier.OrderPlaced(ctx, customer, order, total)
	}, order.ID)

	return &order, nil
}

// reserveStock decrements a limited product by qty only if at least qty units remain.
// Unlimited products are left untouched.
func reserveStock(tx *gorm.DB, productID uint, qty int) error {
	var product models.Product
	if err := tx.Select("id", "name", "is_limited").First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: product %d was removed", apperr.ErrStateConflict, productID)
		}
		return err
	}
	if !product.IsLimited {
		return nil
	}

	res := tx.Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("decrement stock for product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: not enough %q in stock", apperr.ErrStateConflict, product.Name)
	}
	return nil
}

// UpdateStatus sets any status on the order, recognized or not, and records the change.
// Transitions that skip steps, go backwards or leave the lifecycle are flagged on the record.
func (s *Service) UpdateStatus(ctx context.Context, id access.Identity, orderID uint, status models.OrderStatus, interval string) (*models.Order, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	status = models.OrderStatus(strings.TrimSpace(string(status)))
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(string(status)) > models.MaxStatusLen {
		return nil, fmt.Errorf("%w: status longer than %d characters", apperr.ErrValidation, models.MaxStatusLen)
	}
	interval = strings.TrimSpace(interval)
	if utf8.RuneCountInString(interval) > models.MaxIntervalLen {
		return nil, fmt.Errorf("%w: delivery interval longer than %d characters", apperr.ErrValidation, models.MaxIntervalLen)
	}

	var (
		order    models.Order
		customer models.User
		change   models.StatusChange
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
			}
			return err
		}

		change = classifyTransition(order.Status, status)
		change.OrderID = order.ID
		change.ChangedBy = id.UserID

		updates := map[string]any{"status": status}
		if interval != "" {
			updates["delivery_interval"] = interval
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update order %d: %w", orderID, err)
		}
		order.Status = status
		if interval != "" {
			order.DeliveryInterval = interval
		}
		if err := tx.Create(&change).Error; err != nil {
			return fmt.Errorf("record status change: %w", err)
		}

		return tx.First(&customer, order.UserID).Error
	})
	if err != nil {
		return nil, err
	}

	event := logger.Info()
	if change.Skipped || change.Backward || change.Unknown {
		event = logger.Warn()
	}
	event.
		Uint("order_id", order.ID).
		Str("from", string(change.FromStatus)).
		Str("to", string(change.ToStatus)).
		Bool("skipped", change.Skipped).
		Bool("backward", change.Backward).
		Bool("unknown", change.Unknown).
		Uint("by", id.UserID).
		Msg("order status updated")

	ev := events.NewOrderEvent(events.OrderStatusChanged, order)
	ev.PreviousStatus = change.FromStatus
	s.publish(ctx, ev)

	s.notify(func(ctx context.Context) error {
		return s.notifier.StatusChanged(ctx, customer, order)
	}, order.ID)

	return &order, nil
}

func classifyTransition(from, to models.OrderStatus) models.StatusChange {
	change := models.StatusChange{FromStatus: from, ToStatus: to}

	fromPos, toPos := from.Position(), to.Position()
	if fromPos < 0 || toPos < 0 {
		change.Unknown = true
		return change
	}
	change.Backward = toPos < fromPos
	change.Skipped = toPos > fromPos+1
	return change
}

// AttachReceipt records filename as the receipt of one of the caller's own orders.
func (s *Service) AttachReceipt(ctx context.Context, id access.Identity, orderID uint, filename string) (*models.Order, error) {
	if err := access.RequireUser(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: receipt file is required", apperr.ErrValidation)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
			}
			return err
		}
		if order.UserID != id.UserID {
			return fmt.Errorf("%w: order %d belongs to another user", apperr.ErrAuthorization, orderID)
		}

		order.ReceiptFilename = filename
		return tx.Model(&order).Update("receipt_filename", filename).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("order_id", order.ID).Str("receipt", filename).Msg("receipt attached")
	s.publish(ctx, events.NewOrderEvent(events.OrderReceipt, order))
	return &order, nil
}

// History lists the recorded status changes of an order, oldest first.
func (s *Service) History(ctx context.Context, id access.Identity, orderID uint) ([]models.StatusChange, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}

	changes := []models.StatusChange{}
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("load history for order %d: %w", orderID, err)
	}
	return changes, nil
}

func (s *Service) publish(ctx context.Context, ev events.OrderEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Error().Err(err).Uint("order_id", ev.OrderID).Str("type", ev.Type).Msg("failed to publish order event")
	}
}

func (s *Service) notify(send func(ctx context.Context) error, orderID uint) {
	if s.notifier == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			logger.Error().Err(err).Uint("order_id", orderID).Msg("notification failed")
		}
	}()
}
