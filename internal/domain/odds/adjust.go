// Package odds converts raw market odds into the odds the house offers.
package odds

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidOdds is returned for raw odds that cannot be adjusted (<= 1.0)
	ErrInvalidOdds = errors.New("invalid odds")

	// ErrInvalidMargin is returned when the configured margin is outside [0, 1)
	ErrInvalidMargin = errors.New("invalid odds margin")

	// ErrInvalidPlaces is returned when rounding would exceed the stored precision
	ErrInvalidPlaces = errors.New("invalid odds places")
)

const (
	// DefaultPlaces is the number of decimal places offered odds are rounded to.
	DefaultPlaces int32 = 2

	// MaxPlaces is the precision odds are stored with.
	MaxPlaces int32 = 4
)

var one = decimal.NewFromInt(1)

// Adjuster applies the house margin to raw odds.
// An Adjuster is a value; changing the margin means building a new one,
// and odds already frozen on a bet are never touched by it.
type Adjuster struct {
	margin decimal.Decimal
	places int32
}

// NewAdjuster creates an adjuster that shrinks the winning part of the odds
// (raw - 1) by margin and rounds to places decimals.
func NewAdjuster(margin decimal.Decimal, places int32) (Adjuster, error) {
	if margin.IsNegative() || margin.GreaterThanOrEqual(one) {
		return Adjuster{}, fmt.Errorf("%w: %s", ErrInvalidMargin, margin.String())
	}
	if places < 0 {
		places = DefaultPlaces
	}
	if places > MaxPlaces {
		return Adjuster{}, fmt.Errorf("%w: %d, at most %d", ErrInvalidPlaces, places, MaxPlaces)
	}
	return Adjuster{margin: margin, places: places}, nil
}

// MustAdjuster is NewAdjuster for constant configuration. It panics on an invalid margin or precision.
func MustAdjuster(margin decimal.Decimal, places int32) Adjuster {
	a, err := NewAdjuster(margin, places)
	if err != nil {
		panic(err)
	}
	return a
}

// Margin returns the configured house margin.
func (a Adjuster) Margin() decimal.Decimal {
	return a.margin
}

// Places returns the number of decimal places adjusted odds are rounded to.
func (a Adjuster) Places() int32 {
	return a.places
}

// Adjust returns 1 + (raw - 1) * (1 - margin), rounded half away from zero.
// Offered odds never drop below 1.0.
func (a Adjuster) Adjust(raw decimal.Decimal) (decimal.Decimal, error) {
	if raw.LessThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidOdds, raw.String())
	}

	adjusted := one.Add(raw.Sub(one).Mul(one.Sub(a.margin))).Round(a.places)
	if adjusted.LessThan(one) {
		adjusted = one
	}
	return adjusted, nil
}

// Line holds the three 1x2 prices of a match.
type Line struct {
	Home decimal.Decimal `json:"home"`
	Draw decimal.Decimal `json:"draw"`
	Away decimal.Decimal `json:"away"`
}

// AdjustLine adjusts every price of a raw line. Used for current-market display only.
func (a Adjuster) AdjustLine(raw Line) (Line, error) {
	home, err := a.Adjust(raw.Home)
	if err != nil {
		return Line{}, fmt.Errorf("home: %w", err)
	}
	draw, err := a.Adjust(raw.Draw)
	if err != nil {
		return Line{}, fmt.Errorf("draw: %w", err)
	}
	away, err := a.Adjust(raw.Away)
	if err != nil {
		return Line{}, fmt.Errorf("away: %w", err)
	}
	return Line{Home: home, Draw: draw, Away: away}, nil
}
