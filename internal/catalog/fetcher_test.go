package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studysync/studysync/internal/api"
)

func newFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := api.New(api.Config{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		MaxTries:      1,
		RetryInterval: time.Millisecond,
	}, nil)

	return NewFetcher(client), server
}

func itemJSON(id string, price int64) string {
	return fmt.Sprintf(`{"success":true,"data":{"id":%q,"title":"Algebra Basics","price":%d}}`, id, price)
}

func TestFetcher_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("paid collection wins on first probe", func(t *testing.T) {
		var freeProbes int32
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/courses/c-1":
				_, _ = w.Write([]byte(itemJSON("c-1", 499)))
			case "/free-courses/c-1":
				atomic.AddInt32(&freeProbes, 1)
				w.WriteHeader(http.StatusNotFound)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		item, err := fetcher.Get(ctx, KindCourse, "c-1")
		require.NoError(t, err)
		assert.Equal(t, AccessPaid, item.Access)
		assert.Equal(t, KindCourse, item.Kind)
		assert.Equal(t, int64(499), item.Price)
		assert.Equal(t, int64(49900), item.AmountMinorUnits())
		assert.Equal(t, int32(0), atomic.LoadInt32(&freeProbes), "free collection must not be probed")
	})

	t.Run("falls back to the free collection", func(t *testing.T) {
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/notes/n-1":
				w.WriteHeader(http.StatusNotFound)
			case "/free-notes/n-1":
				_, _ = w.Write([]byte(itemJSON("n-1", 0)))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		item, err := fetcher.Get(ctx, KindNotes, "n-1")
		require.NoError(t, err)
		assert.Equal(t, AccessFree, item.Access)
		assert.True(t, item.IsFree())
	})

	t.Run("zero price in the paid collection is still free", func(t *testing.T) {
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(itemJSON("c-2", 0)))
		}))

		item, err := fetcher.Get(ctx, KindCourse, "c-2")
		require.NoError(t, err)
		assert.Equal(t, AccessFree, item.Access)
	})

	t.Run("missing from both collections is not found", func(t *testing.T) {
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := fetcher.Get(ctx, KindCourse, "ghost")
		assert.ErrorIs(t, err, api.ErrNotFound)
	})

	t.Run("HTML error page surfaces as malformed response", func(t *testing.T) {
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("<html>server error</html>"))
		}))

		_, err := fetcher.Get(ctx, KindCourse, "c-1")

		var malformed *api.MalformedResponseError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestFetcher_List(t *testing.T) {
	ctx := context.Background()

	t.Run("merges both collections", func(t *testing.T) {
		fetcher, _ := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/courses":
				_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"c-1","title":"Algebra","price":499}]}`))
			case "/free-courses":
				_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"c-2","title":"Intro","price":0}]}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		items, err := fetcher.List(ctx, KindCourse)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, AccessPaid, items[0].Access)
		assert.Equal(t, AccessFree, items[1].Access)
	})
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"course", "notes"} {
		kind, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, kind.String())
	}

	_, err := ParseKind("videos")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
