package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/orderflow/internal/auth"
)

// POST /register
func (h *Handler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBind(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Users.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered", "user": user})
}

// POST /login
func (h *Handler) Login(c *gin.Context) {
	var in auth.LoginInput
	if err := c.ShouldBind(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Users.Authenticate(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := auth.StartSession(c, user.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged in", "user": user})
}

// POST /logout
func (h *Handler) Logout(c *gin.Context) {
	token, err := auth.EndSession(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if token != "" {
		if err := h.Carts.Clear(c.Request.Context(), token); err != nil {
			logger.Warn().Err(err).Msg("failed to drop cart on logout")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// GET /admin/users
func (h *Handler) AdminListUsers(c *gin.Context) {
	users, err := h.Users.ListUsers(c.Request.Context(), auth.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// POST /admin/users (user_id, block=1|0)
func (h *Handler) AdminSetBlocked(c *gin.Context) {
	userID, ok := parseID(c.PostForm("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	user, err := h.Users.SetBlocked(c.Request.Context(), auth.CurrentIdentity(c), userID, c.PostForm("block") == "1")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
