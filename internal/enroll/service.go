package enroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/internal/api"
	"github.com/studysync/studysync/internal/catalog"
	"github.com/studysync/studysync/internal/payment"
	"github.com/studysync/studysync/internal/session"
	"github.com/studysync/studysync/internal/telemetry"
)

// Service drives access checks, purchases and payment verification. The
// backend is the sole arbiter of grant state; everything here treats local
// knowledge as advisory and re-asks before anything irreversible.
type Service struct {
	client *api.Client
	store  session.Store
}

func NewService(client *api.Client, store session.Store) *Service {
	return &Service{client: client, store: store}
}

// CheckAccess asks whether the current user already holds the item. Without
// a session the answer is "no access" with no network call. A 401 clears the
// session and reports ErrAuthExpired: the user is signed out, not merely
// access-less.
func (s *Service) CheckAccess(ctx context.Context, kind catalog.Kind, itemID string) (*Access, error) {
	sess, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			return &Access{HasAccess: false}, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var access Access
	err = s.client.Get(ctx, fmt.Sprintf("/access/%s/%s", kind, itemID), &access)
	if err != nil {
		if errors.Is(err, api.ErrAuthExpired) {
			s.clearSession(ctx)
			return nil, fmt.Errorf("access check for %s: %w", sess.UserID, err)
		}
		if errors.Is(err, api.ErrNotFound) {
			// No grant recorded for this user/item pair.
			return &Access{HasAccess: false}, nil
		}
		return nil, fmt.Errorf("access check: %w", err)
	}

	return &access, nil
}

// purchaseResponse is the backend's answer to a purchase request.
type purchaseResponse struct {
	Free  bool           `json:"free"`
	Grant *Grant         `json:"grant"`
	Order *payment.Order `json:"order,omitempty"`
}

// Purchase requests access to an item.
//
// The flow runs NotStarted -> Requested -> (FreeGranted | AwaitingPayment);
// free items come back with a completed grant and no payment session is ever
// opened, paid items come back pending with the order descriptor for the
// checkout. Without a session the flow suspends with ErrSignInRequired.
//
// Access is re-checked immediately before the purchase is posted: an access
// check that resolved stale (or a second tap racing the first) must not
// double-charge.
func (s *Service) Purchase(ctx context.Context, kind catalog.Kind, itemID string) (*Result, error) {
	sess, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			return nil, ErrSignInRequired
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	access, err := s.CheckAccess(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if access.HasAccess {
		log.Info().
			Str("item_id", itemID).
			Str("kind", kind.String()).
			Msg("user already holds access, skipping purchase")
		return &Result{AlreadyOwned: true, Grant: access.Grant}, nil
	}

	telemetry.GetMetrics().PurchasesInitiatedTotal.Add(ctx, 1)

	var resp purchaseResponse
	err = s.client.Post(ctx, "/purchases", map[string]string{
		"item_id":   itemID,
		"item_kind": kind.String(),
	}, &resp, api.WithIdempotencyKey(uuid.New().String()))
	if err != nil {
		if errors.Is(err, api.ErrAuthExpired) {
			s.clearSession(ctx)
		}
		return nil, fmt.Errorf("purchase %s %s: %w", kind, itemID, err)
	}

	if resp.Grant == nil {
		return nil, fmt.Errorf("purchase %s %s: backend returned no grant", kind, itemID)
	}

	if resp.Free {
		if resp.Grant.Status != StatusCompleted {
			return nil, fmt.Errorf("purchase %s %s: free grant not completed (status %s)",
				kind, itemID, resp.Grant.Status)
		}
		telemetry.GetMetrics().FreeGrantsTotal.Add(ctx, 1)
		log.Info().
			Str("grant_id", resp.Grant.ID).
			Str("user_id", sess.UserID).
			Msg("free item granted")
		return &Result{Free: true, Grant: resp.Grant}, nil
	}

	if resp.Order == nil {
		return nil, fmt.Errorf("purchase %s %s: paid grant without a payment order", kind, itemID)
	}

	log.Info().
		Str("grant_id", resp.Grant.ID).
		Str("order_id", resp.Order.OrderID).
		Int64("amount", resp.Order.Amount).
		Msg("awaiting payment")

	return &Result{Grant: resp.Grant, Order: resp.Order}, nil
}

// VerifyPayment forwards the gateway's three identifiers to the backend for
// server-side signature verification; the client performs no crypto itself.
// The idempotency key is derived from the payment id, so a retried call
// after a transport failure carries the same payload and key.
//
// Failures split three ways:
//   - transport/timeout: returned as-is, api.Retryable(err) is true and the
//     caller may retry with the same arguments;
//   - expired session: the store is cleared and a *ReauthRequiredError keeps
//     the grant reference so verification resumes after re-login;
//   - anything else: terminal *VerificationError, never auto-retried.
func (s *Service) VerifyPayment(ctx context.Context, grantID, orderID, paymentID, signature string) (*Grant, error) {
	var grant Grant
	err := s.client.Post(ctx, "/payments/verify", map[string]string{
		"grant_id":   grantID,
		"order_id":   orderID,
		"payment_id": paymentID,
		"signature":  signature,
	}, &grant, api.WithIdempotencyKey("verify-"+paymentID))

	if err != nil {
		if errors.Is(err, api.ErrAuthExpired) {
			s.clearSession(ctx)
			return nil, &ReauthRequiredError{
				GrantID:   grantID,
				OrderID:   orderID,
				PaymentID: paymentID,
				Signature: signature,
				Err:       err,
			}
		}
		if api.Retryable(err) {
			return nil, fmt.Errorf("verify payment %s: %w", paymentID, err)
		}
		return nil, &VerificationError{GrantID: grantID, Err: err}
	}

	if grant.Status != StatusCompleted {
		return nil, &VerificationError{
			GrantID: grantID,
			Err:     fmt.Errorf("backend returned status %s", grant.Status),
		}
	}

	telemetry.GetMetrics().PaymentsVerifiedTotal.Add(ctx, 1)
	log.Info().
		Str("grant_id", grant.ID).
		Str("payment_id", paymentID).
		Msg("payment verified, access granted")

	return &grant, nil
}

func (s *Service) clearSession(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to clear expired session")
	}
}
