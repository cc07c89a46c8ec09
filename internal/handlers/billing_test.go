package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/billing"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

type stubBilling struct {
	err      error
	mode     string
	created  bool
	gotLimit int
}

func (s *stubBilling) CancelImmediately(ctx context.Context, userID string) (models.Subscription, error) {
	s.mode = "immediately"
	return models.Subscription{UserID: userID, Status: models.SubscriptionCanceled}, s.err
}

func (s *stubBilling) CancelAtPeriodEnd(ctx context.Context, userID string) (models.Subscription, error) {
	s.mode = "period_end"
	return models.Subscription{UserID: userID, Status: models.SubscriptionActive}, s.err
}

func (s *stubBilling) RecentInvoices(ctx context.Context, userID string, limit int) ([]stripe.InvoiceSummary, error) {
	s.gotLimit = limit
	return []stripe.InvoiceSummary{{ID: "in_1"}}, s.err
}

func (s *stubBilling) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	s.gotLimit = limit
	return []models.Transaction{}, s.err
}

func (s *stubBilling) StartFree(ctx context.Context, userID string) (models.Subscription, bool, error) {
	return models.Subscription{UserID: userID, PlanID: models.FreePlanID}, s.created, s.err
}

func billingRouter(svc BillingService) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/users/{userID}/subscription/cancel", CancelSubscription(svc))
	r.Post("/api/users/{userID}/subscription/free", StartFreeSubscription(svc))
	r.Get("/api/users/{userID}/invoices", Invoices(svc))
	r.Get("/api/users/{userID}/transactions", Transactions(svc))
	return r
}

func postCancel(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/subscription/cancel", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCancelSubscriptionModes(t *testing.T) {
	svc := &stubBilling{}
	h := billingRouter(svc)

	rr := postCancel(t, h, `{"mode":"immediately"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "immediately", svc.mode)

	rr = postCancel(t, h, `{"mode":"period_end"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "period_end", svc.mode)

	rr = postCancel(t, h, `{"mode":"whenever"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelSubscriptionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no paid subscription", billing.ErrNoPaidSubscription, http.StatusNotFound, "no_paid_subscription"},
		{"provider error", &stripe.RemoteError{StatusCode: 402, Message: "Your card was declined."}, http.StatusBadGateway, "provider_error"},
		{"provider timeout", &stripe.RemoteError{Timeout: true, Message: "context deadline exceeded"}, http.StatusGatewayTimeout, "provider_timeout"},
		{"local drift", &billing.LocalStateDriftError{Op: "cancel_immediately", Err: errors.New("db down")}, http.StatusInternalServerError, "local_state_drift"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postCancel(t, billingRouter(&stubBilling{err: tc.err}), `{"mode":"immediately"}`)
			require.Equal(t, tc.status, rr.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
		})
	}
}

func TestCancelSubscriptionProviderMessageVerbatim(t *testing.T) {
	rr := postCancel(t, billingRouter(&stubBilling{err: &stripe.RemoteError{StatusCode: 400, Message: "No such subscription: 'sub_9'"}}), `{"mode":"period_end"}`)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "No such subscription: 'sub_9'", body.Message)
}

func TestStartFreeSubscription(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/subscription/free", nil)
	rr := httptest.NewRecorder()
	billingRouter(&stubBilling{created: true}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	billingRouter(&stubBilling{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestInvoicesLimit(t *testing.T) {
	svc := &stubBilling{}
	rr := httptest.NewRecorder()
	billingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u1/invoices?limit=5", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, svc.gotLimit)

	rr = httptest.NewRecorder()
	billingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u1/transactions?limit=abc", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 50, svc.gotLimit)
}
