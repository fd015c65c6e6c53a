package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := E(KindNotFound, "directory.Resolve", "provider not found")
	wrapped := fmt.Errorf("token lookup: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.Equal(t, "provider not found", Message(wrapped))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:    http.StatusBadRequest,
		KindPrecondition:  http.StatusBadRequest,
		KindNotFound:      http.StatusNotFound,
		KindConfiguration: http.StatusInternalServerError,
		KindUpstream:      http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(E(kind, "op", "msg")), kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindUpstream, "zoho.refresh", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "zoho.refresh: dial tcp: timeout", err.Error())
}
