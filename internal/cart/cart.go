package cart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "cart").Logger()

// Catalog is the subset of the product store the cart validates against.
type Catalog interface {
	Get(ctx context.Context, productID uint) (*models.Product, error)
	GetMany(ctx context.Context, ids []uint) (map[uint]models.Product, error)
}

type Line struct {
	Product  models.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type View struct {
	Lines []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func (v View) Empty() bool {
	return len(v.Lines) == 0
}

type Service struct {
	store   Store
	catalog Catalog
}

func NewService(store Store, catalog Catalog) *Service {
	return &Service{store: store, catalog: catalog}
}

// Add holds one more unit of productID. Missing or unpublished products, and limited products
// already held up to their stock, leave the cart untouched and report added=false.
func (s *Service) Add(ctx context.Context, token string, productID uint) (bool, error) {
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !product.IsPublished {
		return false, nil
	}

	items, err := s.store.Load(ctx, token)
	if err != nil {
		return false, err
	}

	held := items[productID]
	if !product.Available(held + 1) {
		logger.Debug().Uint("product_id", productID).Int("held", held).Int("stock", product.Quantity).Msg("add refused, stock exhausted")
		return false, nil
	}

	items[productID] = held + 1
	if err := s.store.Save(ctx, token, items); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Remove(ctx context.Context, token string, productID uint) error {
	items, err := s.store.Load(ctx, token)
	if err != nil {
		return err
	}
	if _, ok := items[productID]; !ok {
		return nil
	}

	delete(items, productID)
	return s.store.Save(ctx, token, items)
}

// View resolves the cart against the catalog, dropping entries whose product no longer exists.
func (s *Service) View(ctx context.Context, token string) (View, error) {
	items, err := s.store.Load(ctx, token)
	if err != nil {
		return View{}, err
	}

	ids := make([]uint, 0, len(items))
	for pid := range items {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return View{}, fmt.Errorf("resolve cart: %w", err)
	}

	view := View{Lines: []Line{}, Total: decimal.Zero}
	for _, pid := range ids {
		product, ok := products[pid]
		if !ok {
			continue
		}
		qty := items[pid]
		subtotal := decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(qty)))
		view.Lines = append(view.Lines, Line{Product: product, Quantity: qty, Subtotal: subtotal})
		view.Total = view.Total.Add(subtotal)
	}
	return view, nil
}

func (s *Service) Clear(ctx context.Context, token string) error {
	return s.store.Delete(ctx, token)
}
