package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/orderflow/internal/auth"
	"github.com/Keoroanthony/orderflow/internal/models"
	"github.com/Keoroanthony/orderflow/internal/orders"
)

// POST /checkout (multipart: desired_datetime, delivery_interval, comment, receipt)
func (h *Handler) Checkout(c *gin.Context) {
	desired, err := orders.ParseDesiredDelivery(c.PostForm("desired_datetime"))
	if err != nil {
		respondError(c, err)
		return
	}

	var receipt string
	if fh, err := c.FormFile("receipt"); err == nil {
		if receipt, err = h.Receipts.Save(fh); err != nil {
			respondError(c, err)
			return
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.Orders.Checkout(c.Request.Context(), auth.CurrentIdentity(c), orders.CheckoutInput{
		DesiredDelivery:  desired,
		DeliveryInterval: c.PostForm("delivery_interval"),
		Comment:          c.PostForm("comment"),
		ReceiptFilename:  receipt,
	})
	if err != nil {
		h.Receipts.Remove(receipt)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "order created successfully", "order": order})
}

// GET /orders?date_from=YYYY-MM-DD&date_to=YYYY-MM-DD
func (h *Handler) ListOrders(c *gin.Context) {
	r, err := orders.ParseDateRange(c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		respondError(c, err)
		return
	}

	list, err := h.Orders.ListForUser(c.Request.Context(), auth.CurrentIdentity(c), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// POST /upload_receipt/:id
func (h *Handler) UploadReceipt(c *gin.Context) {
	orderID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	fh, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt file is required"})
		return
	}

	name, err := h.Receipts.Save(fh)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.Orders.AttachReceipt(c.Request.Context(), auth.CurrentIdentity(c), orderID, name)
	if err != nil {
		h.Receipts.Remove(name)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GET /admin/orders?status=&date_from=&date_to=
func (h *Handler) AdminListOrders(c *gin.Context) {
	r, err := orders.ParseDateRange(c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.Orders.ListAll(c.Request.Context(), auth.CurrentIdentity(c), orders.AdminFilter{
		Status: models.OrderStatus(c.Query("status")),
		Range:  r,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":         report.Orders,
		"total_quantity": report.TotalQuantity,
		"total_price":    report.TotalPrice,
		"statuses":       models.Lifecycle,
	})
}

// POST /admin/orders (order_id, status, delivery_interval)
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseID(c.PostForm("order_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_id"})
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), auth.CurrentIdentity(c), orderID,
		models.OrderStatus(c.PostForm("status")), c.PostForm("delivery_interval"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GET /admin/orders/:id/history
func (h *Handler) AdminOrderHistory(c *gin.Context) {
	orderID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	history, err := h.Orders.History(c.Request.Context(), auth.CurrentIdentity(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
