package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus_MapsKinds(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Unavailable("x", errors.New("boom")), http.StatusBadGateway},
		{Internal("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("kind %d: expected %d, got %d", tc.err.Kind, tc.want, got)
		}
	}
}

func TestGetKind_FindsWrappedError(t *testing.T) {
	base := Conflict("stale run")
	wrapped := fmt.Errorf("recommend step: %w", base)

	if !Is(wrapped, KindConflict) {
		t.Fatalf("expected wrapped conflict to be detected")
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain error to have unknown kind")
	}
}

func TestMessage_IncludesCause(t *testing.T) {
	err := Unavailable("ingestion failed", errors.New("crm returned 401"))
	if got := Message(err); got != "ingestion failed: crm returned 401" {
		t.Fatalf("unexpected message %q", got)
	}
}
