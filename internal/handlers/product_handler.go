package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/auth"
	"github.com/Keoroanthony/orderflow/internal/catalog"
)

type productForm struct {
	Name        string  `form:"name" binding:"required"`
	Description string  `form:"description"`
	Price       float64 `form:"price" binding:"gte=0"`
	Quantity    int     `form:"quantity" binding:"gte=0"`
	IsLimited   string  `form:"is_limited"`
	IsPublished string  `form:"is_published"`
	ImageURL    string  `form:"image_url"`
}

// bindProduct accepts a JSON body or an HTML form whose checkboxes post "on".
// A multipart "image" part is saved and its stored name returned in ImageFilename.
func (h *Handler) bindProduct(c *gin.Context) (catalog.ProductInput, error) {
	var in catalog.ProductInput
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		return in, nil
	}

	var form productForm
	if err := c.ShouldBind(&form); err != nil {
		return in, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	in = catalog.ProductInput{
		Name:        form.Name,
		Description: form.Description,
		Price:       form.Price,
		Quantity:    form.Quantity,
		IsLimited:   checked(form.IsLimited),
		IsPublished: checked(form.IsPublished),
		ImageURL:    form.ImageURL,
	}

	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		if in.ImageFilename, err = h.Images.Save(fh); err != nil {
			return in, err
		}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		return in, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return in, nil
}

// GET /
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.Catalog.ListPublished(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GET /admin/products
func (h *Handler) AdminListProducts(c *gin.Context) {
	products, err := h.Catalog.ListAll(c.Request.Context(), auth.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// POST /admin/products creates the product or overwrites the one with the same name.
func (h *Handler) AdminUpsertProduct(c *gin.Context) {
	in, err := h.bindProduct(c)
	if err != nil {
		respondError(c, err)
		return
	}

	product, result, err := h.Catalog.Upsert(c.Request.Context(), auth.CurrentIdentity(c), in)
	if err != nil {
		h.Images.Remove(in.ImageFilename)
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"product": product, "created": result.Created})
}

// GET /admin/products/:id
func (h *Handler) AdminGetProduct(c *gin.Context) {
	productID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	product, err := h.Catalog.Get(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

// POST /admin/products/:id
func (h *Handler) AdminUpdateProduct(c *gin.Context) {
	productID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	in, err := h.bindProduct(c)
	if err != nil {
		respondError(c, err)
		return
	}

	product, err := h.Catalog.Update(c.Request.Context(), auth.CurrentIdentity(c), productID, in)
	if err != nil {
		h.Images.Remove(in.ImageFilename)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}
