package enroll

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studysync/studysync/internal/api"
	"github.com/studysync/studysync/internal/catalog"
	"github.com/studysync/studysync/internal/session"
)

func newService(t *testing.T, handler http.Handler, signedIn bool) (*Service, session.Store) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := session.NewMemoryStore()
	if signedIn {
		require.NoError(t, store.Set(context.Background(), &session.Session{
			Token:    "tok-abc",
			UserID:   "u-1",
			UserName: "Asha",
		}))
	}

	client := api.New(api.Config{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		MaxTries:      1,
		RetryInterval: time.Millisecond,
	}, store)

	return NewService(client, store), store
}

const noAccessJSON = `{"success":true,"data":{"has_access":false}}`

func TestService_CheckAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("no session means no access without a network call", func(t *testing.T) {
		var calls int32
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}), false)

		access, err := svc.CheckAccess(ctx, catalog.KindCourse, "c-1")
		require.NoError(t, err)
		assert.False(t, access.HasAccess)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("is idempotent", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"has_access":true,"grant":{"id":"g-1","status":"completed"}}}`))
		}), true)

		first, err := svc.CheckAccess(ctx, catalog.KindCourse, "c-1")
		require.NoError(t, err)
		second, err := svc.CheckAccess(ctx, catalog.KindCourse, "c-1")
		require.NoError(t, err)
		assert.Equal(t, first.HasAccess, second.HasAccess)
	})

	t.Run("401 clears the session and reports signed out", func(t *testing.T) {
		svc, store := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}), true)

		_, err := svc.CheckAccess(ctx, catalog.KindCourse, "c-1")
		assert.ErrorIs(t, err, api.ErrAuthExpired)

		_, err = store.Get(ctx)
		assert.ErrorIs(t, err, session.ErrNotSignedIn)
	})

	t.Run("no recorded grant is plain no-access", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}), true)

		access, err := svc.CheckAccess(ctx, catalog.KindCourse, "c-1")
		require.NoError(t, err)
		assert.False(t, access.HasAccess)
	})
}

func TestService_Purchase(t *testing.T) {
	ctx := context.Background()

	t.Run("suspends without a session", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), false)

		_, err := svc.Purchase(ctx, catalog.KindCourse, "c-1")
		assert.ErrorIs(t, err, ErrSignInRequired)
	})

	t.Run("free item completes with no payment order", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/access/course/c-free":
				_, _ = w.Write([]byte(noAccessJSON))
			case r.URL.Path == "/purchases" && r.Method == http.MethodPost:
				_, _ = w.Write([]byte(`{"success":true,"data":{"free":true,"grant":{"id":"g-1","item_id":"c-free","status":"completed"}}}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}), true)

		result, err := svc.Purchase(ctx, catalog.KindCourse, "c-free")
		require.NoError(t, err)
		assert.True(t, result.Free)
		assert.Nil(t, result.Order, "free path must never carry a payment order")
		assert.Equal(t, StatusCompleted, result.Grant.Status)
	})

	t.Run("paid item returns a pending grant and an order", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/access/notes/n-1":
				_, _ = w.Write([]byte(noAccessJSON))
			case r.URL.Path == "/purchases":
				assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
				_, _ = w.Write([]byte(`{"success":true,"data":{"free":false,
					"grant":{"id":"g-2","item_id":"n-1","status":"pending"},
					"order":{"order_id":"order_9","amount":49900,"currency":"INR"}}}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}), true)

		result, err := svc.Purchase(ctx, catalog.KindNotes, "n-1")
		require.NoError(t, err)
		assert.False(t, result.Free)
		assert.Equal(t, StatusPending, result.Grant.Status, "paid grant must not be completed before verification")
		require.NotNil(t, result.Order)
		assert.Equal(t, int64(49900), result.Order.Amount)
	})

	t.Run("re-checks access and skips a duplicate purchase", func(t *testing.T) {
		var purchases int32
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/access/course/c-1":
				_, _ = w.Write([]byte(`{"success":true,"data":{"has_access":true,"grant":{"id":"g-0","status":"completed"}}}`))
			case "/purchases":
				atomic.AddInt32(&purchases, 1)
			}
		}), true)

		result, err := svc.Purchase(ctx, catalog.KindCourse, "c-1")
		require.NoError(t, err)
		assert.True(t, result.AlreadyOwned)
		assert.Equal(t, int32(0), atomic.LoadInt32(&purchases), "owned item must not be purchased again")
	})

	t.Run("HTML error page is a distinguished failure", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/access/course/c-1" {
				_, _ = w.Write([]byte(noAccessJSON))
				return
			}
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>Bad Gateway</html>"))
		}), true)

		_, err := svc.Purchase(ctx, catalog.KindCourse, "c-1")

		var malformed *api.MalformedResponseError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestService_VerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("completes the grant", func(t *testing.T) {
		var gotKey string
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("Idempotency-Key")
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":"g-2","status":"completed"}}`))
		}), true)

		grant, err := svc.VerifyPayment(ctx, "g-2", "order_9", "pay_1", "sig_1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, grant.Status)
		assert.Equal(t, "verify-pay_1", gotKey, "retried verification must reuse the same key")
	})

	t.Run("expired session clears the store and keeps the grant reference", func(t *testing.T) {
		svc, store := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}), true)

		_, err := svc.VerifyPayment(ctx, "g-2", "order_9", "pay_1", "sig_1")

		var reauth *ReauthRequiredError
		require.ErrorAs(t, err, &reauth)
		assert.Equal(t, "g-2", reauth.GrantID)
		assert.Equal(t, "pay_1", reauth.PaymentID)

		_, err = store.Get(ctx)
		assert.ErrorIs(t, err, session.ErrNotSignedIn)
	})

	t.Run("server-reported failure is terminal", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"signature mismatch"}`))
		}), true)

		_, err := svc.VerifyPayment(ctx, "g-2", "order_9", "pay_1", "sig_bad")

		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.False(t, api.Retryable(err), "terminal failures must not look retryable")
	})

	t.Run("transport failure stays retryable", func(t *testing.T) {
		store := session.NewMemoryStore()
		require.NoError(t, store.Set(ctx, &session.Session{Token: "t", UserID: "u", UserName: "n"}))
		client := api.New(api.Config{
			BaseURL:       "http://127.0.0.1:1",
			Timeout:       time.Second,
			MaxTries:      1,
			RetryInterval: time.Millisecond,
		}, store)
		svc := NewService(client, store)

		_, err := svc.VerifyPayment(ctx, "g-2", "order_9", "pay_1", "sig_1")
		require.Error(t, err)

		var verr *VerificationError
		assert.False(t, errors.As(err, &verr))
		assert.True(t, api.Retryable(err))

		// Session must survive a transport failure.
		_, err = store.Get(ctx)
		assert.NoError(t, err)
	})

	t.Run("non-completed status from the backend is a failure", func(t *testing.T) {
		svc, _ := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":"g-2","status":"pending"}}`))
		}), true)

		_, err := svc.VerifyPayment(ctx, "g-2", "order_9", "pay_1", "sig_1")

		var verr *VerificationError
		assert.ErrorAs(t, err, &verr)
	})
}
