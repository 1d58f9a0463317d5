package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/domain"
)

func respondStatus(t *testing.T, err error) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondDomainError(c, err)
	return w.Code
}

func TestDomainErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ValidationError("bad input"), http.StatusBadRequest},
		{"invariant", domain.InvariantError("edges out of order"), http.StatusBadRequest},
		{"not found", domain.NotFoundError("event gone"), http.StatusNotFound},
		{"unresolved conflict", domain.ConflictError("still conflicted after merge retry"), http.StatusInternalServerError},
		{"vanished mid-save", domain.ConflictError("action event x vanished during save"), http.StatusInternalServerError},
		{"retryable", errors.Join(domain.ErrRetryable, errors.New("deadlock detected")), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := respondStatus(t, tc.err); got != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, got)
			}
		})
	}
}

func TestWrappedErrorsKeepTheirStatus(t *testing.T) {
	err := domain.WrapOp("action_event.save", domain.ConflictError("stale version"))
	if got := respondStatus(t, err); got != http.StatusInternalServerError {
		t.Fatalf("wrapped conflict should stay 5xx, got %d", got)
	}
	err = domain.WrapOp("action_event.get", domain.NotFoundError("missing"))
	if got := respondStatus(t, err); got != http.StatusNotFound {
		t.Fatalf("wrapped not-found should stay 404, got %d", got)
	}
}
