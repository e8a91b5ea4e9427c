package payment

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// checkoutPage hosts the gateway's checkout script, pre-seeded with the
// order descriptor. The page posts a single outcome message back to
// /callback with the state nonce it was served with.
var checkoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html>
<head><title>StudySync Checkout</title></head>
<body>
<h1>Complete your payment</h1>
<p>{{.Order.ItemTitle}} — {{.Order.Currency}} {{.Order.Amount}} (order {{.Order.OrderID}})</p>
<script src="{{.GatewayScriptURL}}"></script>
<script>
  var order = {{.OrderJSON}};
  var state = {{.State}};
  function post(outcome) {
    outcome.state = state;
    fetch("/callback", {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify(outcome),
    }).then(function () { document.body.innerHTML = "<p>You can close this window.</p>"; });
  }
  openGatewayCheckout(order, {
    onSuccess: function (ids) { post({status: "success", payment_id: ids.paymentId, order_id: ids.orderId, signature: ids.signature}); },
    onDismiss: function () { post({status: "cancelled"}); },
    onFailure: function (reason) { post({status: "failed", reason: reason}); },
  });
</script>
</body>
</html>
`))

// callbackMessage is the single structured message the checkout page posts.
type callbackMessage struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
	Reason    string `json:"reason"`
}

// CheckoutHost is the embedded web surface for a checkout session: a
// loopback HTTP server that serves the gateway checkout page and receives
// its one-shot outcome callback. The host never assumes the callback
// arrives; the session countdown terminates the flow independently.
type CheckoutHost struct {
	session *Session
	server  *http.Server
	state   string
	url     string

	gatewayScriptURL string
}

// OpenCheckout starts the loopback host for the given session. gatewayOrigin
// is the checkout gateway's web origin, permitted via CORS to post the
// callback; gatewayScriptURL is its checkout script.
func OpenCheckout(sess *Session, gatewayOrigin, gatewayScriptURL string) (*CheckoutHost, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start checkout listener: %w", err)
	}

	host := &CheckoutHost{
		session:          sess,
		state:            rand.Text(),
		url:              fmt.Sprintf("http://%s/", listener.Addr().String()),
		gatewayScriptURL: gatewayScriptURL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", host.pageHandler)
	mux.HandleFunc("POST /callback", host.callbackHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{gatewayOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	host.server = &http.Server{
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := host.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("checkout host stopped")
		}
	}()

	log.Info().
		Str("url", host.url).
		Str("order_id", sess.Order().OrderID).
		Msg("checkout host listening")

	return host, nil
}

// URL is the address to open in the user's browser.
func (h *CheckoutHost) URL() string {
	return h.url
}

// Close shuts the loopback server down. Safe to call after the session has
// terminated; pending handlers get a short grace period.
func (h *CheckoutHost) Close() error {
	return h.server.Close()
}

func (h *CheckoutHost) pageHandler(w http.ResponseWriter, r *http.Request) {
	order := h.session.Order()
	orderJSON, err := json.Marshal(order)
	if err != nil {
		http.Error(w, "failed to render checkout", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = checkoutPage.Execute(w, struct {
		Order            Order
		OrderJSON        template.JS
		State            string
		GatewayScriptURL string
	}{
		Order:            order,
		OrderJSON:        template.JS(orderJSON),
		State:            h.state,
		GatewayScriptURL: h.gatewayScriptURL,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to render checkout page")
	}
}

func (h *CheckoutHost) callbackHandler(w http.ResponseWriter, r *http.Request) {
	var msg callbackMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}

	if msg.State != h.state {
		log.Warn().Msg("checkout callback state mismatch, ignoring")
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	outcome := Outcome{
		OrderID:   msg.OrderID,
		PaymentID: msg.PaymentID,
		Signature: msg.Signature,
		Reason:    msg.Reason,
	}

	switch OutcomeStatus(msg.Status) {
	case OutcomeSuccess:
		outcome.Status = OutcomeSuccess
	case OutcomeCancelled:
		outcome.Status = OutcomeCancelled
	default:
		outcome.Status = OutcomeFailed
		if outcome.Reason == "" {
			outcome.Reason = "gateway reported failure"
		}
	}

	if !h.session.Resolve(outcome) {
		// Session already terminated (countdown or user cancel); the late
		// message is a no-op.
		log.Debug().Str("status", msg.Status).Msg("late checkout callback dropped")
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true}`))
}
