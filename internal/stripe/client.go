package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultInvoiceLimit = 10
	maxInvoiceLimit     = 100
)

// Config configures the provider client.
type Config struct {
	SecretKey         string
	APIURL            string
	Timeout           time.Duration
	MaxNetworkRetries int64
	HTTPClient        *http.Client
}

// Client issues the outbound commands that mirror user actions on the
// provider. Every call is bounded by the configured timeout.
type Client struct {
	api     *client.API
	timeout time.Duration
}

// InvoiceSummary is the subset of a provider invoice shown in billing history.
type InvoiceSummary struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Status      string    `json:"status"`
	AmountDue   int64     `json:"amount_due"`
	AmountPaid  int64     `json:"amount_paid"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	HostedURL   string    `json:"hosted_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// RemoteSubscription is the provider's view of a subscription.
type RemoteSubscription struct {
	ID                string
	Status            string
	CancelAtPeriodEnd bool
}

// NewClient creates a provider client authenticated with the service key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	backendCfg := &stripelib.BackendConfig{
		MaxNetworkRetries: stripelib.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &stripelib.LeveledLogger{Level: stripelib.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripelib.String(cfg.APIURL)
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	}

	backends := stripelib.NewBackendsWithConfig(backendCfg)
	return &Client{
		api:     client.New(cfg.SecretKey, backends),
		timeout: cfg.Timeout,
	}, nil
}

// CancelImmediately ends the subscription on the provider right away.
func (c *Client) CancelImmediately(ctx context.Context, subscriptionID string) error {
	const op = "cancel_immediately"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripelib.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	return c.finish(ctx, op, err)
}

// CancelAtPeriodEnd stops renewal; access continues until the period ends.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	const op = "cancel_at_period_end"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(true),
	}
	params.Context = ctx

	_, err := c.api.Subscriptions.Update(subscriptionID, params)
	return c.finish(ctx, op, err)
}

// ListRecentInvoices returns up to limit invoices for the subscription, newest
// first. Only a single page is requested.
func (c *Client) ListRecentInvoices(ctx context.Context, subscriptionID string, limit int) ([]InvoiceSummary, error) {
	const op = "list_invoices"
	if limit <= 0 {
		limit = defaultInvoiceLimit
	}
	if limit > maxInvoiceLimit {
		limit = maxInvoiceLimit
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripelib.InvoiceListParams{
		Subscription: stripelib.String(subscriptionID),
	}
	params.Context = ctx
	params.Limit = stripelib.Int64(int64(limit))
	params.Single = true

	invoices := make([]InvoiceSummary, 0, limit)
	iter := c.api.Invoices.List(params)
	for iter.Next() && len(invoices) < limit {
		inv := iter.Invoice()
		invoices = append(invoices, InvoiceSummary{
			ID:          inv.ID,
			Number:      inv.Number,
			Status:      string(inv.Status),
			AmountDue:   inv.AmountDue,
			AmountPaid:  inv.AmountPaid,
			Currency:    string(inv.Currency),
			Description: inv.Description,
			HostedURL:   inv.HostedInvoiceURL,
			CreatedAt:   time.Unix(inv.Created, 0).UTC(),
		})
	}
	if err := c.finish(ctx, op, iter.Err()); err != nil {
		return nil, err
	}
	return invoices, nil
}

// RetrieveSubscription reads the provider's current state for one subscription.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (RemoteSubscription, error) {
	const op = "retrieve_subscription"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripelib.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err := c.finish(ctx, op, err); err != nil {
		return RemoteSubscription{}, err
	}
	return RemoteSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

func (c *Client) finish(ctx context.Context, op string, err error) error {
	if err == nil {
		metrics.RemoteCallsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}

	remoteErr := newRemoteError(op, err)
	if ctx.Err() != nil {
		remoteErr.Timeout = true
	}
	outcome := "error"
	if remoteErr.Timeout {
		outcome = "timeout"
	}
	metrics.RemoteCallsTotal.WithLabelValues(op, outcome).Inc()
	return remoteErr
}

// RemoteError is a failed provider command. Message carries the provider's
// own error text unchanged.
type RemoteError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Timeout    bool
	Err        error
}

func newRemoteError(op string, err error) *RemoteError {
	remoteErr := &RemoteError{Op: op, Message: err.Error(), Err: err}

	var apiErr *stripelib.Error
	if errors.As(err, &apiErr) {
		remoteErr.StatusCode = apiErr.HTTPStatusCode
		remoteErr.Code = string(apiErr.Code)
		remoteErr.Message = apiErr.Msg
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		remoteErr.Timeout = true
	}
	return remoteErr
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("stripe API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("stripe %s failed: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
