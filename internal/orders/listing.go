package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

const dateLayout = "2006-01-02"

// DateRange bounds order creation dates. Both ends are whole days and both are inclusive.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	var err error
	if r.From, err = parseDay(from, "date_from"); err != nil {
		return DateRange{}, err
	}
	if r.To, err = parseDay(to, "date_to"); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func parseDay(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", apperr.ErrValidation, field)
	}
	return &t, nil
}

func (r DateRange) apply(q *gorm.DB) *gorm.DB {
	if r.From != nil {
		q = q.Where("created_at >= ?", *r.From)
	}
	if r.To != nil {
		q = q.Where("created_at < ?", r.To.AddDate(0, 0, 1))
	}
	return q
}

type AdminFilter struct {
	Status models.OrderStatus
	Range  DateRange
}

// Summary is an order with its total priced at current product prices.
type Summary struct {
	models.Order
	Total decimal.Decimal `json:"total"`
}

type Report struct {
	Orders        []Summary       `json:"orders"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// OrderTotal sums quantity times the product's current price. Items whose product is gone count as zero.
func OrderTotal(order models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, it := range order.Items {
		total = total.Add(decimal.NewFromFloat(it.Product.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (s *Service) ListForUser(ctx context.Context, id access.Identity, r DateRange) ([]Summary, error) {
	if err := access.RequireUser(id); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("user_id = ?", id.UserID)
	orders, err := s.find(r.apply(q))
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, Summary{Order: o, Total: OrderTotal(o)})
	}
	return summaries, nil
}

// ListAll returns every order matching f together with the item count and value of the whole selection.
func (s *Service) ListAll(ctx context.Context, id access.Identity, f AdminFilter) (*Report, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx)
	if status := strings.TrimSpace(string(f.Status)); status != "" {
		q = q.Where("status = ?", status)
	}
	orders, err := s.find(f.Range.apply(q))
	if err != nil {
		return nil, err
	}

	report := &Report{Orders: make([]Summary, 0, len(orders)), TotalPrice: decimal.Zero}
	for _, o := range orders {
		total := OrderTotal(o)
		report.Orders = append(report.Orders, Summary{Order: o, Total: total})
		report.TotalPrice = report.TotalPrice.Add(total)
		for _, it := range o.Items {
			report.TotalQuantity += it.Quantity
		}
	}
	return report, nil
}

func (s *Service) find(q *gorm.DB) ([]models.Order, error) {
	var orders []models.Order
	if err := q.Preload("Items.Product").Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
