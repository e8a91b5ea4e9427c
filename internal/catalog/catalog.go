package catalog

import (
	"errors"
	"fmt"
)

// Kind identifies which catalog an item belongs to. Courses and notes share
// one flow; the kind only decides which backend collections are probed.
type Kind string

const (
	KindCourse Kind = "course"
	KindNotes  Kind = "notes"
)

// ErrUnknownKind is returned for a kind outside course|notes.
var ErrUnknownKind = errors.New("unknown catalog kind")

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCourse, KindNotes:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// paidPath and freePath describe the backend's split collections: paid and
// free variants of one conceptual entity live behind separate endpoints.
func (k Kind) paidPath() string {
	switch k {
	case KindNotes:
		return "/notes"
	default:
		return "/courses"
	}
}

func (k Kind) freePath() string {
	switch k {
	case KindNotes:
		return "/free-notes"
	default:
		return "/free-courses"
	}
}

func (k Kind) String() string {
	return string(k)
}

// Access says whether an item's content sits behind a purchase.
type Access string

const (
	AccessPaid Access = "paid"
	AccessFree Access = "free"
)

// Content is one piece of item content: a video lecture for courses, a PDF
// for notes.
type Content struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Preview  bool   `json:"preview,omitempty"`
}

// Item is the client-side view of a catalog entry, merged from whichever
// collection (paid or free) answered.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Price         int64     `json:"price"` // major units, 0 for free items
	Kind          Kind      `json:"kind"`
	Access        Access    `json:"access"`
	CoverURL      string    `json:"cover_url,omitempty"`
	Contents      []Content `json:"contents,omitempty"`
	EnrolledCount int       `json:"enrolled_count,omitempty"`
	ViewCount     int       `json:"view_count,omitempty"`
	Rating        float64   `json:"rating,omitempty"`
}

// AmountMinorUnits is the payable amount the gateway expects: price 499
// becomes 49900.
func (i *Item) AmountMinorUnits() int64 {
	return i.Price * 100
}

// IsFree reports whether the item unlocks without payment.
func (i *Item) IsFree() bool {
	return i.Access == AccessFree || i.Price == 0
}
