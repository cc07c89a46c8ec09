package stripe

import (
	"bytes"
	"encoding/json"
	"time"
)

// ExpandableID decodes a reference that the provider sends either as a bare
// id or as an expanded object carrying an "id" field.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string {
	return string(e)
}

// CheckoutSession is a minimal representation of a checkout.session event.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          ExpandableID      `json:"customer"`
	Subscription      ExpandableID      `json:"subscription"`
	Invoice           ExpandableID      `json:"invoice"`
	PaymentIntent     ExpandableID      `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentStatus     string            `json:"payment_status"`
	Created           int64             `json:"created"`
	Metadata          map[string]string `json:"metadata"`
}

// UserID returns the internal user the session was opened for.
func (s CheckoutSession) UserID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata["user_id"]
}

// Period is a billing window in unix seconds.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Invoice is a minimal representation of an invoice event. Newer API
// versions moved the subscription reference under parent; both are read.
type Invoice struct {
	ID            string       `json:"id"`
	Number        string       `json:"number"`
	Status        string       `json:"status"`
	Customer      ExpandableID `json:"customer"`
	Subscription  ExpandableID `json:"subscription"`
	PaymentIntent ExpandableID `json:"payment_intent"`
	Charge        ExpandableID `json:"charge"`
	AmountPaid    int64        `json:"amount_paid"`
	AmountDue     int64        `json:"amount_due"`
	Currency      string       `json:"currency"`
	Description   string       `json:"description"`
	BillingReason string       `json:"billing_reason"`
	Created       int64        `json:"created"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period Period `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// SubscriptionID returns the provider subscription the invoice bills.
func (i Invoice) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription.String()
	}
	return i.Parent.SubscriptionDetails.Subscription.String()
}

// PaymentID returns the payment reference, preferring the payment intent.
func (i Invoice) PaymentID() string {
	if i.PaymentIntent != "" {
		return i.PaymentIntent.String()
	}
	return i.Charge.String()
}

// CreatedAt converts the creation timestamp, zero when absent.
func (i Invoice) CreatedAt() time.Time {
	if i.Created == 0 {
		return time.Time{}
	}
	return time.Unix(i.Created, 0).UTC()
}

// ServicePeriod returns the latest line period on the invoice.
func (i Invoice) ServicePeriod() (start, end time.Time, ok bool) {
	var best Period
	for _, line := range i.Lines.Data {
		if line.Period.End > best.End && line.Period.Start > 0 {
			best = line.Period
		}
	}
	if best.End == 0 || best.End <= best.Start {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(best.Start, 0).UTC(), time.Unix(best.End, 0).UTC(), true
}

// Subscription is a minimal representation of a customer.subscription event.
// Only the fields the reconciler owns are decoded.
type Subscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}
