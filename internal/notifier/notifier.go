package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "notifier").Logger()

// Service texts customers about their orders and mails operations about new ones.
// Either channel may be nil.
type Service struct {
	sms             *SMSSender
	email           *EmailSender
	operationsEmail string
}

func NewService(sms *SMSSender, email *EmailSender, operationsEmail string) *Service {
	return &Service{sms: sms, email: email, operationsEmail: operationsEmail}
}

func (s *Service) OrderPlaced(ctx context.Context, customer models.User, order models.Order, total decimal.Decimal) error {
	var errs []error

	if phone := customer.PhoneNumber(); phone != "" && s.sms.Enabled() {
		msg := fmt.Sprintf("Your order #%d has been placed. Total: %s. Thank you!", order.ID, total.StringFixed(2))
		if err := s.sms.Send(ctx, phone, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if s.operationsEmail != "" && s.email.Enabled() {
		subject := fmt.Sprintf("New order #%d from %s", order.ID, customer.Username)
		bodyText := fmt.Sprintf(
			"Order #%d was placed by %s (%s).\nItems: %d\nTotal: %s\nDelivery: %s\nComment: %s\n",
			order.ID, customer.Username, customer.Organization, len(order.Items), total.StringFixed(2),
			deliveryText(order), order.Comment)
		bodyHTML := fmt.Sprintf(`
        <html>
        <body>
            <p>Order #%d was placed by <strong>%s</strong> (%s).</p>
            <ul>
                <li>Items: %d</li>
                <li>Total: %s</li>
                <li>Delivery: %s</li>
            </ul>
            <p>%s</p>
        </body>
        </html>`, order.ID, customer.Username, customer.Organization, len(order.Items), total.StringFixed(2),
			deliveryText(order), order.Comment)

		if err := s.email.Send(ctx, s.operationsEmail, subject, bodyHTML, bodyText); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Service) StatusChanged(ctx context.Context, customer models.User, order models.Order) error {
	phone := customer.PhoneNumber()
	if phone == "" || !s.sms.Enabled() {
		return nil
	}

	msg := fmt.Sprintf("Order #%d status: %s.", order.ID, order.Status.Title())
	return s.sms.Send(ctx, phone, msg)
}

func deliveryText(order models.Order) string {
	switch {
	case order.DesiredDelivery != nil && order.DeliveryInterval != "":
		return order.DesiredDelivery.Format("2006-01-02 15:04") + " (" + order.DeliveryInterval + ")"
	case order.DesiredDelivery != nil:
		return order.DesiredDelivery.Format("2006-01-02 15:04")
	default:
		return order.DeliveryInterval
	}
}
