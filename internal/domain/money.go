package domain

import (
	"fmt"
	"math"
)

// Money is an amount in minor currency units (1/100).
type Money int64

// MoneyFromUnits converts a major-unit amount, rounding half away from zero.
func MoneyFromUnits(v float64) Money {
	return Money(math.Round(v * 100))
}

// Units returns the amount in major units.
func (m Money) Units() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
