package enroll

import (
	"errors"
	"fmt"

	"github.com/studysync/studysync/internal/catalog"
	"github.com/studysync/studysync/internal/payment"
)

// Sentinel errors
var (
	// ErrSignInRequired suspends a purchase flow: the caller prompts for
	// sign-in and re-invokes Purchase, which re-checks access first.
	ErrSignInRequired = errors.New("sign in required")
)

// Status is the lifecycle state of an access grant. Grants are owned by the
// backend; the client only ever reflects server-confirmed states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PaymentDetails records the order a pending grant is waiting on.
type PaymentDetails struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
}

// Grant is the server-recorded proof that a student may view an item's paid
// content. Free items get a completed grant in one step; paid items start
// pending and complete only after payment verification.
type Grant struct {
	ID        string          `json:"id"`
	StudentID string          `json:"student_id"`
	ItemID    string          `json:"item_id"`
	ItemKind  catalog.Kind    `json:"item_kind"`
	Status    Status          `json:"status"`
	Payment   *PaymentDetails `json:"payment,omitempty"`
}

// Access is the answer to "does this user already hold this item?".
type Access struct {
	HasAccess bool   `json:"has_access"`
	Grant     *Grant `json:"grant,omitempty"`
}

// Result is the outcome of a purchase request. Exactly one of the following
// holds: the item was free (or already owned) and the grant is completed, or
// the item is paid and Order carries the descriptor for the checkout.
type Result struct {
	Free         bool           `json:"free"`
	AlreadyOwned bool           `json:"already_owned,omitempty"`
	Grant        *Grant         `json:"grant"`
	Order        *payment.Order `json:"order,omitempty"`
}

// ReauthRequiredError is returned when payment verification hit an expired
// session. The session has already been cleared; the pending grant reference
// is preserved so verification can be retried after re-login.
type ReauthRequiredError struct {
	GrantID   string
	OrderID   string
	PaymentID string
	Signature string
	Err       error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("sign in again to finish verifying payment for grant %s: %v", e.GrantID, e.Err)
}

func (e *ReauthRequiredError) Unwrap() error {
	return e.Err
}

// VerificationError is a terminal, server-reported verification failure.
// Never retried automatically; the user is pointed at support.
type VerificationError struct {
	GrantID string
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed for grant %s: %v", e.GrantID, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
