package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

func serve(t *testing.T, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(Middleware())
	e.GET("/test", handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareConvertsStructuredErrors(t *testing.T) {
	rec := serve(t, func(c echo.Context) error {
		return PaymentError("payment verification failed")
	})

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "payment verification failed", body.Error)
	assert.Equal(t, TypePayment, body.Type)
}

func TestMiddlewareMapsDomainSentinels(t *testing.T) {
	rec := serve(t, func(c echo.Context) error {
		return domain.ErrStreamNotFound
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddlewareHidesInternalCauses(t *testing.T) {
	rec := serve(t, func(c echo.Context) error {
		return InternalError("failed to list streams", assert.AnError)
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestMiddlewarePassesThroughEchoErrors(t *testing.T) {
	rec := serve(t, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddlewareLeavesSuccessAlone(t *testing.T) {
	rec := serve(t, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
