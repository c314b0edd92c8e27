package auth

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Keoroanthony/orderflow/internal/access"
	"github.com/Keoroanthony/orderflow/internal/apperr"
)

const (
	SessionName = "gosess"

	sessionUserKey = "user_id"
	sessionCartKey = "cart_token"
	identityKey    = "identity"
)

var registerOnce sync.Once

// RegisterValidators adds the "ruphone" binding rule to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("ruphone", func(fl validator.FieldLevel) bool {
				return ValidPhone(fl.Field().String())
			})
		}
	})
}

// StartSession stores the user in the session, keeping any cart token already issued.
func StartSession(c *gin.Context, userID uint) error {
	sess := sessions.Default(c)
	sess.Set(sessionUserKey, userID)
	if _, ok := sess.Get(sessionCartKey).(string); !ok {
		sess.Set(sessionCartKey, uuid.NewString())
	}
	return sess.Save()
}

// EndSession drops everything held in the session, returning the cart token that was in use.
func EndSession(c *gin.Context) (string, error) {
	sess := sessions.Default(c)
	token, _ := sess.Get(sessionCartKey).(string)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	return token, sess.Save()
}

func cartToken(c *gin.Context) (string, error) {
	sess := sessions.Default(c)
	if token, ok := sess.Get(sessionCartKey).(string); ok && token != "" {
		return token, nil
	}
	token := uuid.NewString()
	sess.Set(sessionCartKey, token)
	return token, sess.Save()
}

// RequireAuth resolves the session into an access.Identity on the gin context.
// Blocked users lose their session on the next request.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		userID, ok := sess.Get(sessionUserKey).(uint)
		if !ok || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := s.Get(c.Request.Context(), userID)
		if err != nil {
			_, _ = EndSession(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.IsBlocked {
			_, _ = EndSession(c)
			logger.Warn().Uint("user_id", user.ID).Msg("blocked user session ended")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account is blocked"})
			return
		}

		token, err := cartToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session error"})
			return
		}

		c.Set(identityKey, access.FromUser(*user, token))
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.RequireAdmin(CurrentIdentity(c)); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) access.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(access.Identity); ok {
			return id
		}
	}
	return access.Identity{}
}
