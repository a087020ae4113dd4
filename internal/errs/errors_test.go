package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))

	wrapped := fmt.Errorf("handler: %w", Forbidden("nope"))
	assert.True(t, Is(wrapped, KindForbidden))
	assert.Equal(t, "nope", MessageOf(wrapped))
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("store message", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store message: connection refused", err.Error())
	assert.False(t, Permanent(err))
}

func TestPermanent(t *testing.T) {
	for _, err := range []error{Validation("x"), NotFound("x"), Forbidden("x"), Conflict("x")} {
		assert.True(t, Permanent(err), KindOf(err))
	}
	assert.False(t, Permanent(errors.New("unclassified")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindNotFound:   http.StatusNotFound,
		KindForbidden:  http.StatusForbidden,
		KindConflict:   http.StatusConflict,
		KindTransient:  http.StatusServiceUnavailable,
		KindUnknown:    http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
	assert.Equal(t, "an internal server error occurred", MessageOf(errors.New("secret detail")))
}
