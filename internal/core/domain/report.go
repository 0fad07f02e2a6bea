package domain

import (
	"sort"
	"strings"
	"time"
)

// BucketTotals are payment sums over calendar windows containing the
// evaluation instant.
type BucketTotals struct {
	Today      float64 `json:"today"`
	TodayCount int     `json:"today_count"`
	Month      float64 `json:"month"`
	Year       float64 `json:"year"`
	AllTime    float64 `json:"all_time"`
	Count      int     `json:"count"`
}

// SumBuckets adds every payment into the buckets whose calendar window, taken
// in loc at instant now, contains the payment timestamp.
func SumBuckets(payments []Payment, now time.Time, loc *time.Location) BucketTotals {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	ny, nm, nd := now.Date()

	var t BucketTotals
	for _, p := range payments {
		y, m, d := p.Timestamp.In(loc).Date()
		t.AllTime += p.Amount
		t.Count++
		if y != ny {
			continue
		}
		t.Year += p.Amount
		if m != nm {
			continue
		}
		t.Month += p.Amount
		if d == nd {
			t.Today += p.Amount
			t.TodayCount++
		}
	}
	return t
}

// PaymentFilter composes optional predicates with logical AND. Zero values
// disable a predicate.
type PaymentFilter struct {
	DeviceCode string
	From       time.Time // inclusive
	To         time.Time // inclusive
	Text       string    // case-insensitive substring of sender or content
	MinAmount  float64
	Limit      int
}

// Match reports whether p satisfies every enabled predicate.
func (f PaymentFilter) Match(p Payment) bool {
	if f.DeviceCode != "" && p.DeviceCode != f.DeviceCode {
		return false
	}
	if !f.From.IsZero() && p.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.Timestamp.After(f.To) {
		return false
	}
	if f.MinAmount > 0 && p.Amount < f.MinAmount {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(p.Sender), needle) &&
			!strings.Contains(strings.ToLower(p.Content), needle) {
			return false
		}
	}
	return true
}

// Apply filters payments, orders them newest first and applies the limit.
// Equal timestamps keep their input order.
func (f PaymentFilter) Apply(payments []Payment) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	SortByTimestampDesc(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// SortByTimestampDesc orders payments newest first, stable on ties.
func SortByTimestampDesc(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].Timestamp.After(payments[j].Timestamp)
	})
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
