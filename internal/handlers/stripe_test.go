package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/reconciler"
)

const testWebhookSecret = "whsec_test_secret"

type stubReconciler struct {
	calls  []string
	result reconciler.Outcome
	err    error
}

func (s *stubReconciler) Apply(ctx context.Context, event *stripelib.Event) (reconciler.Outcome, error) {
	s.calls = append(s.calls, event.ID)
	return s.result, s.err
}

type memMarker map[string]bool

func (m memMarker) Seen(ctx context.Context, id string) bool { return m[id] }
func (m memMarker) Mark(ctx context.Context, id string)      { m[id] = true }

type stubPlans struct{}

func (stubPlans) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return []models.Plan{{ID: "free", Name: "Free", MaxProjects: 3, MaxQueries: 10}}, nil
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func eventPayload(id, typ string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"id":"sub_1","object":"subscription","status":"canceled"}}}`, id, typ)
}

func TestWebhookProcessesVerifiedEvent(t *testing.T) {
	rec := &stubReconciler{result: reconciler.OutcomeApplied}
	marker := memMarker{}
	h := NewStripeHandler(stubPlans{}, rec, marker, testWebhookSecret)

	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, signedRequest(t, eventPayload("evt_1", "customer.subscription.deleted")))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"received":true}`, rr.Body.String())
	assert.Equal(t, []string{"evt_1"}, rec.calls)
	assert.True(t, marker["evt_1"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	rec := &stubReconciler{}
	h := NewStripeHandler(stubPlans{}, rec, nil, testWebhookSecret)

	req := signedRequest(t, eventPayload("evt_1", "customer.subscription.deleted"))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	rec := &stubReconciler{}
	h := NewStripeHandler(stubPlans{}, rec, nil, testWebhookSecret)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(eventPayload("evt_1", "invoice.paid")))
	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookWithoutSecretIsUnavailable(t *testing.T) {
	rec := &stubReconciler{}
	h := NewStripeHandler(stubPlans{}, rec, nil, "")

	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, signedRequest(t, eventPayload("evt_1", "invoice.paid")))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	h := NewStripeHandler(stubPlans{}, &stubReconciler{}, nil, testWebhookSecret)
	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestWebhookDuplicateSkipsReconciler(t *testing.T) {
	rec := &stubReconciler{}
	marker := memMarker{"evt_1": true}
	h := NewStripeHandler(stubPlans{}, rec, marker, testWebhookSecret)

	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, signedRequest(t, eventPayload("evt_1", "invoice.paid")))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":true,"duplicate":true}`, rr.Body.String())
	assert.Empty(t, rec.calls)
}

func TestWebhookFailureIsRetriedAndNotMarked(t *testing.T) {
	rec := &stubReconciler{err: errors.New("store: cancel and downgrade: connection reset")}
	marker := memMarker{}
	h := NewStripeHandler(stubPlans{}, rec, marker, testWebhookSecret)

	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, signedRequest(t, eventPayload("evt_1", "customer.subscription.deleted")))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, marker["evt_1"])
}

func TestWebhookMalformedIsAcknowledged(t *testing.T) {
	rec := &stubReconciler{err: fmt.Errorf("reconciler: %w: no user", reconciler.ErrMalformedEvent)}
	h := NewStripeHandler(stubPlans{}, rec, memMarker{}, testWebhookSecret)

	rr := httptest.NewRecorder()
	h.HandleWebhook().ServeHTTP(rr, signedRequest(t, eventPayload("evt_1", "checkout.session.completed")))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListPlans(t *testing.T) {
	h := NewStripeHandler(stubPlans{}, &stubReconciler{}, nil, testWebhookSecret)
	rr := httptest.NewRecorder()
	h.ListPlans().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/plans", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"free"`)
}
