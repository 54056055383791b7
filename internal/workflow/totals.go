package workflow

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the TVA percentage applied when none is given.
const DefaultTaxRate = 18.0

// Decimal places kept by the database columns: numeric(18,4) for
// quantities, prices and amounts, numeric(5,2) for the tax rate. Inputs
// with more places are rejected so what is stored is what was computed.
const (
	QuantityScale = 4
	PriceScale    = 4
	TaxRateScale  = 2
	AmountScale   = 4
)

var hundred = decimal.NewFromInt(100)

// LineInput is one priced line before persistence.
type LineInput struct {
	Designation string  `json:"designation"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Totals are the computed amounts of a line set.
type Totals struct {
	AmountHT  float64 `json:"amount_ht"`
	AmountTVA float64 `json:"amount_tva"`
	AmountTTC float64 `json:"amount_ttc"`
}

// ComputeLineAmount returns quantity × unitPrice. Both must be strictly positive.
func ComputeLineAmount(quantity, unitPrice float64) (float64, error) {
	amount, err := lineAmount(quantity, unitPrice)
	if err != nil {
		return 0, err
	}
	return amount.InexactFloat64(), nil
}

// lineAmount is rounded half away from zero to AmountScale places.
func lineAmount(quantity, unitPrice float64) (decimal.Decimal, error) {
	if !(quantity > 0) || math.IsInf(quantity, 0) {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive, got %v", ErrValidation, quantity)
	}
	if !(unitPrice > 0) || math.IsInf(unitPrice, 0) {
		return decimal.Zero, fmt.Errorf("%w: unit price must be positive, got %v", ErrValidation, unitPrice)
	}
	qty, err := withScale(quantity, QuantityScale, "quantity")
	if err != nil {
		return decimal.Zero, err
	}
	price, err := withScale(unitPrice, PriceScale, "unit price")
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(price).Round(AmountScale), nil
}

func withScale(v float64, scale int32, what string) (decimal.Decimal, error) {
	d := decimal.NewFromFloat(v)
	if d.Exponent() < -scale {
		return decimal.Zero, fmt.Errorf("%w: %s %v has more than %d decimal places", ErrValidation, what, v, scale)
	}
	return d, nil
}

// ValidateTaxRate checks that rate is a percentage in [0, 100] with at most
// TaxRateScale decimal places.
func ValidateTaxRate(rate float64) error {
	if !(rate >= 0 && rate <= 100) {
		return fmt.Errorf("%w: tax rate must be within [0, 100], got %v", ErrValidation, rate)
	}
	_, err := withScale(rate, TaxRateScale, "tax rate")
	return err
}

// ComputeTotals recomputes HT, TVA and TTC from scratch, at AmountScale.
//
//	HT  = Σ round(quantity × unitPrice)
//	TTC = round(HT × (1 + rate/100))
//	TVA = TTC − HT
//
// An empty line set yields zero totals; callers that need at least one line
// check it themselves.
func ComputeTotals(lines []LineInput, taxRatePercent float64) (Totals, error) {
	if err := ValidateTaxRate(taxRatePercent); err != nil {
		return Totals{}, err
	}

	ht := decimal.Zero
	for i, l := range lines {
		amount, err := lineAmount(l.Quantity, l.UnitPrice)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		ht = ht.Add(amount)
	}

	rate := decimal.NewFromFloat(taxRatePercent)
	ttc := ht.Mul(hundred.Add(rate)).Div(hundred).Round(AmountScale)

	return Totals{
		AmountHT:  ht.InexactFloat64(),
		AmountTVA: ttc.Sub(ht).InexactFloat64(),
		AmountTTC: ttc.InexactFloat64(),
	}, nil
}
