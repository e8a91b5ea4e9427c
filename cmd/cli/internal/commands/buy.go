package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/studysync/studysync/internal/catalog"
	"github.com/studysync/studysync/internal/enroll"
	"github.com/studysync/studysync/internal/payment"
)

// BuyCmd runs the whole purchase flow: access check, purchase request, and
// for paid items the hosted checkout with countdown, then server-side payment
// verification. Free items complete without any payment step.
type BuyCmd struct {
	apiFlags `embed:""`

	Kind string `arg:"" help:"Item kind (course, notes)"`
	ID   string `arg:"" help:"Item id"`

	GatewayOrigin string        `help:"Payment gateway web origin" default:"https://checkout.paygate.in"`
	GatewayScript string        `help:"Payment gateway checkout script URL" default:"https://checkout.paygate.in/v1/checkout.js"`
	WaitTimeout   time.Duration `help:"How long to hold the checkout open" default:"15m"`
}

func (c *BuyCmd) Run(ctx context.Context, globals *Globals) error {
	kind, err := catalog.ParseKind(c.Kind)
	if err != nil {
		return err
	}

	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	fetcher := catalog.NewFetcher(client)
	item, err := fetcher.Get(ctx, kind, c.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Buying %s %q (%s)\n", kind, item.Title, formatPrice(item.Price))

	svc := enroll.NewService(client, store)
	result, err := svc.Purchase(ctx, kind, c.ID)
	if err != nil {
		if errors.Is(err, enroll.ErrSignInRequired) {
			return fmt.Errorf("sign in first: studysync login <email>")
		}
		return err
	}

	if result.AlreadyOwned {
		fmt.Println("You already own this item.")
		return nil
	}

	if result.Free {
		fmt.Println("Free item granted. Enjoy!")
		printItem(item)
		return nil
	}

	order := *result.Order
	if order.ItemTitle == "" {
		order.ItemTitle = item.Title
	}

	outcome, err := c.runCheckout(ctx, order)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case payment.OutcomeSuccess:
		return c.verify(ctx, svc, fetcher, kind, result.Grant.ID, outcome)
	case payment.OutcomeCancelled:
		fmt.Println("Checkout cancelled. You have not been charged.")
		return nil
	case payment.OutcomeTimeout:
		fmt.Printf("Checkout expired after %s. Run the command again to retry.\n", c.WaitTimeout)
		return nil
	default:
		return fmt.Errorf("payment failed: %s", outcome.Reason)
	}
}

// runCheckout opens the loopback checkout host and blocks until the session
// reaches a terminal state: gateway callback, countdown expiry, or Ctrl+C.
func (c *BuyCmd) runCheckout(ctx context.Context, order payment.Order) (payment.Outcome, error) {
	sess := payment.NewSession(order, c.WaitTimeout)

	host, err := payment.OpenCheckout(sess, c.GatewayOrigin, c.GatewayScript)
	if err != nil {
		return payment.Outcome{}, err
	}
	defer func() { _ = host.Close() }()

	fmt.Println()
	fmt.Println("Open this URL in your browser to pay:")
	fmt.Printf("  %s\n", host.URL())
	fmt.Printf("The checkout stays open until %s. Press Ctrl+C to cancel.\n",
		sess.Deadline().Format("15:04:05"))
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		reader := bufio.NewReader(os.Stdin)
		for {
			select {
			case <-sess.Done():
				return
			case <-ticker.C:
				fmt.Printf("Waiting for payment, %s remaining...\n",
					sess.Remaining().Round(time.Second))
			case <-sigCh:
				// A payment may already be in flight in the browser; make the
				// user confirm before abandoning it.
				fmt.Print("\nCancel the payment? [y/N]: ")
				line, _ := reader.ReadString('\n')
				if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
					sess.Resolve(payment.Outcome{
						Status:  payment.OutcomeCancelled,
						OrderID: order.OrderID,
						Reason:  "cancelled by user",
					})
					return
				}
				fmt.Println("Continuing to wait for the payment.")
			}
		}
	}()

	return sess.Wait(ctx), nil
}

func (c *BuyCmd) verify(ctx context.Context, svc *enroll.Service, fetcher *catalog.Fetcher,
	kind catalog.Kind, grantID string, outcome payment.Outcome) error {

	fmt.Println("Payment received, verifying with the backend...")

	_, err := svc.VerifyPayment(ctx, grantID, outcome.OrderID, outcome.PaymentID, outcome.Signature)
	if err != nil {
		return reportVerifyFailure(err, grantID, outcome.OrderID, outcome.PaymentID, outcome.Signature)
	}

	fmt.Println("Payment verified. Access granted.")

	if item, err := fetcher.Get(ctx, kind, c.ID); err == nil {
		printItem(item)
	}
	return nil
}

// reportVerifyFailure turns a verification error into actionable output. A
// successful gateway payment must never be silently lost: when verification
// could not complete, the exact resume command is printed.
func reportVerifyFailure(err error, grantID, orderID, paymentID, signature string) error {
	resume := fmt.Sprintf("studysync verify %s %s %s %s", grantID, orderID, paymentID, signature)

	var reauth *enroll.ReauthRequiredError
	if errors.As(err, &reauth) {
		fmt.Println("Your session expired during checkout. Your payment is safe.")
		fmt.Println("Sign in again, then resume the verification:")
		fmt.Printf("  %s\n", resume)
		return err
	}

	var verr *enroll.VerificationError
	if errors.As(err, &verr) {
		return fmt.Errorf("payment verification rejected, access not granted: %w", err)
	}

	fmt.Println("Could not reach the backend to verify the payment. Your payment is safe.")
	fmt.Println("Retry the verification when you are back online:")
	fmt.Printf("  %s\n", resume)
	return err
}

// VerifyCmd resumes a payment verification that was interrupted by a network
// failure or an expired session during checkout.
type VerifyCmd struct {
	apiFlags `embed:""`

	GrantID   string `arg:"" help:"Grant id from the interrupted purchase"`
	OrderID   string `arg:"" help:"Gateway order id"`
	PaymentID string `arg:"" help:"Gateway payment id"`
	Signature string `arg:"" help:"Gateway signature"`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	grant, err := enroll.NewService(client, store).VerifyPayment(ctx,
		c.GrantID, c.OrderID, c.PaymentID, c.Signature)
	if err != nil {
		return reportVerifyFailure(err, c.GrantID, c.OrderID, c.PaymentID, c.Signature)
	}

	fmt.Printf("Payment verified. Grant %s is %s.\n", grant.ID, grant.Status)
	return nil
}
