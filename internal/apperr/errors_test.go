package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: phone is malformed", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: order 7", ErrNotFound), http.StatusNotFound},
		{ErrAuthorization, http.StatusForbidden},
		{fmt.Errorf("%w: account is blocked", ErrAuthentication), http.StatusUnauthorized},
		{fmt.Errorf("%w: only 2 left", ErrStateConflict), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}
