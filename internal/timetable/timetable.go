package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/studysync/studysync/internal/api"
)

// Event is one calendar entry: a live class, a test, a batch meeting.
type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	BatchID  string    `json:"batch_id,omitempty"`
	Location string    `json:"location,omitempty"`
}

// AttendanceStatus for a single day.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLeave   AttendanceStatus = "leave"
	StatusHoliday AttendanceStatus = "holiday"
)

// Record is one day's attendance for the signed-in student.
type Record struct {
	Date   string           `json:"date"` // YYYY-MM-DD
	Status AttendanceStatus `json:"status"`
}

// Summary aggregates a range of attendance records. Holidays do not count
// as working days.
type Summary struct {
	Working int
	Present int
	Absent  int
	Leave   int
	Percent float64
}

// Service reads calendar and attendance data for the signed-in student.
type Service struct {
	client *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Month fetches the calendar events for one month.
func (s *Service) Month(ctx context.Context, year int, month time.Month) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/calendar/%04d/%02d", year, month)
	if err := s.client.Get(ctx, path, &events); err != nil {
		return nil, fmt.Errorf("fetch calendar %04d-%02d: %w", year, month, err)
	}
	return events, nil
}

// Attendance fetches the student's attendance records for a batch over an
// inclusive date range (YYYY-MM-DD).
func (s *Service) Attendance(ctx context.Context, batchID, from, to string) ([]Record, error) {
	var records []Record
	path := fmt.Sprintf("/batches/%s/attendance?from=%s&to=%s", batchID, from, to)
	if err := s.client.Get(ctx, path, &records); err != nil {
		return nil, fmt.Errorf("fetch attendance for batch %s: %w", batchID, err)
	}
	return records, nil
}

// Summarize folds records into a summary. An empty range yields zero percent
// rather than a division by zero.
func Summarize(records []Record) Summary {
	var sum Summary
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			sum.Present++
			sum.Working++
		case StatusAbsent:
			sum.Absent++
			sum.Working++
		case StatusLeave:
			sum.Leave++
			sum.Working++
		case StatusHoliday:
			// not a working day
		}
	}
	if sum.Working > 0 {
		sum.Percent = float64(sum.Present) / float64(sum.Working) * 100
	}
	return sum
}
