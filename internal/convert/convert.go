package convert

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"crossfund/internal/model"
)

var ErrDivisionByZero = errors.New("division by zero")

// ToUSD converts a native amount into USD using the snapshot price.
func ToUSD(amount float64, currency model.Currency, snapshot model.PriceSnapshot) (float64, error) {
	price, err := lookup(amount, currency, snapshot)
	if err != nil {
		return 0, err
	}
	usd, _ := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(price)).Float64()
	return finite(usd, currency)
}

// FromUSD converts a USD amount into the native currency.
func FromUSD(usd float64, currency model.Currency, snapshot model.PriceSnapshot) (float64, error) {
	price, err := lookup(usd, currency, snapshot)
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, fmt.Errorf("convert %s: %w", currency, ErrDivisionByZero)
	}
	native, _ := decimal.NewFromFloat(usd).DivRound(decimal.NewFromFloat(price), 18).Float64()
	return finite(native, currency)
}

// finite rejects results that overflowed float64.
func finite(v float64, currency model.Currency) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("convert %s: result out of range: %w", currency, model.ErrInvalidAmount)
	}
	return v, nil
}

func lookup(amount float64, currency model.Currency, snapshot model.PriceSnapshot) (float64, error) {
	price, ok := snapshot.Price(currency)
	if !ok {
		return 0, fmt.Errorf("convert %s: %w", currency, model.ErrUnsupportedCurrency)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, fmt.Errorf("convert %v %s: %w", amount, currency, model.ErrInvalidAmount)
	}
	return price, nil
}

// Sum adds float values exactly and returns the rounded float result.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Float64()
	return f
}
