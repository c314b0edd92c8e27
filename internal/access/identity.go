// Package access carries the caller identity explicitly into every workflow operation.
package access

import (
	"fmt"

	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/models"
)

type Identity struct {
	UserID       uint
	Username     string
	IsAdmin      bool
	SessionToken string
}

func FromUser(u models.User, sessionToken string) Identity {
	return Identity{
		UserID:       u.ID,
		Username:     u.Username,
		IsAdmin:      u.IsAdmin,
		SessionToken: sessionToken,
	}
}

func (id Identity) Authenticated() bool {
	return id.UserID != 0
}

func RequireUser(id Identity) error {
	if !id.Authenticated() {
		return fmt.Errorf("%w: login required", apperr.ErrAuthentication)
	}
	return nil
}

func RequireAdmin(id Identity) error {
	if err := RequireUser(id); err != nil {
		return err
	}
	if !id.IsAdmin {
		return fmt.Errorf("%w: admin access required", apperr.ErrAuthorization)
	}
	return nil
}
