package models

import "math"

// Balances, transaction amounts and user prices are stored as int64 cents.
// Provider unit prices carry four decimal places, so they get their own
// finer scale. Floats appear only at the JSON boundary.
const (
	CentsPerDollar    = 100
	APIUnitsPerDollar = 10000
)

// Cents converts a dollar amount to whole cents.
func Cents(dollars float64) int64 {
	return int64(math.Round(dollars * CentsPerDollar))
}

// Dollars converts cents back to a two-decimal dollar amount.
func Dollars(cents int64) float64 {
	return math.Round(float64(cents)) / CentsPerDollar
}

// APIUnits converts a provider dollar price to ten-thousandths of a dollar.
func APIUnits(dollars float64) int64 {
	return int64(math.Round(dollars * APIUnitsPerDollar))
}

// APIDollars converts provider price units back to a dollar amount.
func APIDollars(units int64) float64 {
	return float64(units) / APIUnitsPerDollar
}
