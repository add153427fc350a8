package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	appointmentdomain "github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	invoicedomain "github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
	"github.com/stretchr/testify/require"
)

func serveWithError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, err)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestAbortWithError_DomainMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invoice not found", invoicedomain.ErrNotFound, http.StatusNotFound},
		{"invoice invalid state", invoicedomain.ErrInvalidState, http.StatusConflict},
		{"invoice overpayment", invoicedomain.ErrOverpayment, http.StatusUnprocessableEntity},
		{"invoice concurrency conflict", invoicedomain.ErrConcurrencyConflict, http.StatusConflict},
		{"invoice missing reason", invoicedomain.ErrMissingReason, http.StatusBadRequest},
		{"patient duplicate document", patientdomain.ErrDuplicateDocument, http.StatusConflict},
		{"appointment slot taken", appointmentdomain.ErrSlotTaken, http.StatusConflict},
		{"wrapped sentinel", errors.Join(errors.New("context"), invoicedomain.ErrAlreadyExonerated), http.StatusConflict},
		{"service error passthrough", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown error hides detail", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := serveWithError(t, tc.err)
			require.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestAbortWithError_UnknownErrorBodyIsOpaque(t *testing.T) {
	resp := serveWithError(t, errors.New("dial tcp 10.0.0.5:5432: i/o timeout"))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.NotContains(t, resp.Body.String(), "10.0.0.5")
	require.Contains(t, resp.Body.String(), "internal_error")
}
