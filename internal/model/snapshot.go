package model

import (
	"maps"
	"time"
)

// PriceSource tells where a snapshot price came from.
type PriceSource string

const (
	SourceLive    PriceSource = "live"
	SourceStale   PriceSource = "stale"
	SourceDefault PriceSource = "default"
)

// PriceSnapshot is a timestamped set of USD-per-unit prices.
type PriceSnapshot struct {
	Prices     map[Currency]float64     `json:"prices"`
	Sources    map[Currency]PriceSource `json:"sources"`
	CapturedAt time.Time                `json:"capturedAt"`
}

// Price returns the USD price of one unit of c.
func (s PriceSnapshot) Price(c Currency) (float64, bool) {
	p, ok := s.Prices[c]
	return p, ok
}

// FreshAt reports whether the snapshot is still within window at now.
func (s PriceSnapshot) FreshAt(now time.Time, window time.Duration) bool {
	if s.CapturedAt.IsZero() {
		return false
	}
	return now.Sub(s.CapturedAt) < window
}

// Clone returns a deep copy.
func (s PriceSnapshot) Clone() PriceSnapshot {
	return PriceSnapshot{
		Prices:     maps.Clone(s.Prices),
		Sources:    maps.Clone(s.Sources),
		CapturedAt: s.CapturedAt,
	}
}
