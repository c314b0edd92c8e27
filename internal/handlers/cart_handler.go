package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/orderflow/internal/auth"
)

// GET /add_to_cart/:id
func (h *Handler) AddToCart(c *gin.Context) {
	productID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	added, err := h.Carts.Add(c.Request.Context(), auth.CurrentIdentity(c).SessionToken, productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// GET /remove_from_cart/:id
func (h *Handler) RemoveFromCart(c *gin.Context) {
	productID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	if err := h.Carts.Remove(c.Request.Context(), auth.CurrentIdentity(c).SessionToken, productID); err != nil {
		respondError(c, err)
		return
	}
	h.ViewCart(c)
}

// GET /cart, GET /checkout
func (h *Handler) ViewCart(c *gin.Context) {
	view, err := h.Carts.View(c.Request.Context(), auth.CurrentIdentity(c).SessionToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
