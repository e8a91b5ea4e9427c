package timetable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studysync/studysync/internal/api"
)

func newService(t *testing.T, handler http.Handler) *Service {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewService(api.New(api.Config{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		MaxTries:      1,
		RetryInterval: time.Millisecond,
	}, nil))
}

func TestService_Month(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/2026/08", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":"e-1","title":"Algebra live class","starts_at":"2026-08-03T10:00:00Z","ends_at":"2026-08-03T11:00:00Z","batch_id":"b-1"}
		]}`))
	}))

	events, err := svc.Month(context.Background(), 2026, time.August)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Algebra live class", events[0].Title)
	assert.Equal(t, "b-1", events[0].BatchID)
}

func TestService_Attendance(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batches/b-1/attendance", r.URL.Path)
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("from"))
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"date":"2026-08-01","status":"present"},
			{"date":"2026-08-02","status":"holiday"},
			{"date":"2026-08-03","status":"absent"}
		]}`))
	}))

	records, err := svc.Attendance(context.Background(), "b-1", "2026-08-01", "2026-08-03")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestSummarize(t *testing.T) {
	t.Run("holidays are not working days", func(t *testing.T) {
		sum := Summarize([]Record{
			{Date: "2026-08-01", Status: StatusPresent},
			{Date: "2026-08-02", Status: StatusHoliday},
			{Date: "2026-08-03", Status: StatusPresent},
			{Date: "2026-08-04", Status: StatusAbsent},
			{Date: "2026-08-05", Status: StatusLeave},
		})

		assert.Equal(t, 4, sum.Working)
		assert.Equal(t, 2, sum.Present)
		assert.Equal(t, 1, sum.Absent)
		assert.Equal(t, 1, sum.Leave)
		assert.InDelta(t, 50.0, sum.Percent, 0.001)
	})

	t.Run("empty range is zero percent, not a crash", func(t *testing.T) {
		sum := Summarize(nil)
		assert.Equal(t, 0, sum.Working)
		assert.Equal(t, 0.0, sum.Percent)
	})
}
