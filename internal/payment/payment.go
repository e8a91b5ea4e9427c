package payment

import (
	"time"
)

// DefaultSessionTTL is the fixed countdown a checkout session gets before it
// terminates itself with a timeout outcome.
const DefaultSessionTTL = 15 * time.Minute

// Order is the payment order descriptor the backend returns for a paid
// purchase. It seeds the gateway checkout.
type Order struct {
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"` // minor units
	Currency   string `json:"currency"`
	GatewayKey string `json:"gateway_key,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ItemTitle  string `json:"item_title,omitempty"`
}

// OutcomeStatus is the terminal state of a checkout session.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimeout   OutcomeStatus = "timeout"
)

// Outcome is the single structured message a checkout produces: success with
// the gateway's three identifiers, an explicit cancellation, a failure with a
// reason, or a countdown timeout.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	PaymentID string        `json:"payment_id,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
	Signature string        `json:"signature,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}
