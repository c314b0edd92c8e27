package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/orderflow/configs"
	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

const sessionStateKey = "oidc_state"

// OIDCClaims are the ID token claims used to provision an account.
type OIDCClaims struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone_number"`
}

// OIDC signs users in through an external OpenID Connect provider.
type OIDC struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	users        *Service
}

func NewOIDC(ctx context.Context, cfg config.OIDCConfig, users *Service) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("OIDC provider init: %w", err)
	}

	return &OIDC{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "phone"},
		},
		users: users,
	}, nil
}

// GET /auth/oidc/login
func (o *OIDC) Login(c *gin.Context) {
	state := uuid.NewString()
	sess := sessions.Default(c)
	sess.Set(sessionStateKey, state)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	c.Redirect(http.StatusFound, o.oauth2Config.AuthCodeURL(state))
}

// GET /auth/oidc/callback
func (o *OIDC) Callback(c *gin.Context) {
	sess := sessions.Default(c)
	want, _ := sess.Get(sessionStateKey).(string)
	sess.Delete(sessionStateKey)
	if want == "" || c.Query("state") != want {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code missing"})
		return
	}

	ctx := c.Request.Context()
	oauth2Token, err := o.oauth2Config.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token exchange failed"})
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no id_token in token response"})
		return
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token verification failed"})
		return
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claims parse error"})
		return
	}

	user, err := o.users.UpsertOIDCUser(ctx, claims)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := StartSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged in", "user": user})
}

// UpsertOIDCUser finds the account bound to claims.Sub or provisions a new one.
func (s *Service) UpsertOIDCUser(ctx context.Context, claims OIDCClaims) (*models.User, error) {
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: subject claim missing", apperr.ErrAuthentication)
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("oidc_subject = ?", claims.Sub).First(&user).Error
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		subject := claims.Sub
		user = models.User{
			Username:     oidcUsername(claims),
			PasswordHash: "!",
			OIDCSubject:  &subject,
		}
		if ValidPhone(claims.Phone) {
			var taken int64
			if err := tx.Model(&models.User{}).Where("phone = ?", claims.Phone).Count(&taken).Error; err != nil {
				return err
			}
			if taken == 0 {
				phone := claims.Phone
				user.Phone = &phone
			}
		}

		var clash int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			user.Username = "oidc-" + claims.Sub
		}

		logger.Info().Str("subject", claims.Sub).Str("username", user.Username).Msg("provisioning OIDC user")
		return createUser(tx, &user)
	})
	if err != nil {
		return nil, err
	}

	if user.IsBlocked {
		return nil, fmt.Errorf("%w: account is blocked", apperr.ErrAuthentication)
	}
	return &user, nil
}

func oidcUsername(claims OIDCClaims) string {
	switch {
	case claims.Email != "":
		return claims.Email
	case strings.TrimSpace(claims.Name) != "":
		return strings.TrimSpace(claims.Name)
	default:
		return "oidc-" + claims.Sub
	}
}
