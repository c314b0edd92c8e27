package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "catalog").Logger()

type ProductInput struct {
	Name        string  `form:"name" json:"name" binding:"required"`
	Description string  `form:"description" json:"description"`
	Price       float64 `form:"price" json:"price" binding:"gte=0"`
	Quantity    int     `form:"quantity" json:"quantity" binding:"gte=0"`
	IsLimited   bool    `form:"is_limited" json:"is_limited"`
	IsPublished bool    `form:"is_published" json:"is_published"`
	ImageURL    string  `form:"image_url" json:"image_url"`

	// Name of an image already saved by the caller. Empty keeps the current one.
	ImageFilename string `form:"-" json:"-"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: product name is required", apperr.ErrValidation)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", apperr.ErrValidation)
	}
	if in.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", apperr.ErrValidation)
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.Quantity = in.Quantity
	p.IsLimited = in.IsLimited
	p.IsPublished = in.IsPublished
	if url := strings.TrimSpace(in.ImageURL); url != "" {
		p.ImageURL = url
	}
	if in.ImageFilename != "" {
		p.ImageFilename = in.ImageFilename
	}
}

// UpsertResult tells the caller which branch of create-or-update was taken.
type UpsertResult struct {
	Created bool `json:"created"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListPublished(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).Where("is_published = ?", true).Order("name").Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list published products: %w", err)
	}
	return products, nil
}

func (r *Repository) ListAll(ctx context.Context, id access.Identity) ([]models.Product, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *Repository) Get(ctx context.Context, productID uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
		}
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}
	return &product, nil
}

// GetMany returns the products that still exist among ids, keyed by id.
func (r *Repository) GetMany(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	found := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, p := range products {
		found[p.ID] = p
	}
	return found, nil
}

// Upsert creates the product named in.Name or overwrites every editable field of the existing one.
func (r *Repository) Upsert(ctx context.Context, id access.Identity, in ProductInput) (*models.Product, UpsertResult, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, UpsertResult{}, err
	}
	if err := in.validate(); err != nil {
		return nil, UpsertResult{}, err
	}

	var product models.Product
	var result UpsertResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", strings.TrimSpace(in.Name)).First(&product).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			result.Created = true
			in.apply(&product)
			return tx.Create(&product).Error
		case err != nil:
			return err
		}

		in.apply(&product)
		return tx.Save(&product).Error
	})
	if err != nil {
		return nil, UpsertResult{}, fmt.Errorf("upsert product %q: %w", in.Name, err)
	}

	logger.Info().
		Uint("product_id", product.ID).
		Str("name", product.Name).
		Bool("created", result.Created).
		Uint("by", id.UserID).
		Msg("product upserted")

	return &product, result, nil
}

// Update edits the product with the given id, including its name.
func (r *Repository) Update(ctx context.Context, id access.Identity, productID uint, in ProductInput) (*models.Product, error) {
	if err := access.RequireAdmin(id); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
			}
			return err
		}

		var clash int64
		err := tx.Model(&models.Product{}).
			Where("name = ? AND id <> ?", strings.TrimSpace(in.Name), productID).
			Count(&clash).Error
		if err != nil {
			return err
		}
		if clash > 0 {
			return fmt.Errorf("%w: product name %q already in use", apperr.ErrValidation, in.Name)
		}

		in.apply(&product)
		return tx.Save(&product).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("product_id", product.ID).Uint("by", id.UserID).Msg("product updated")
	return &product, nil
}
