package model

import "fmt"

// CurrencySymbol pairs a symbol scrapers emit with its ISO 4217 code.
type CurrencySymbol struct {
	Symbol string
	Code   string
}

// CurrencySymbols lists the known symbols in match order. Prefixed dollar
// symbols come before the bare "$" they contain.
var CurrencySymbols = []CurrencySymbol{
	{"US$", "USD"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₽", "RUB"},
}

// symbolByCode keeps the last symbol listed for each code, so USD renders
// as "$".
var symbolByCode = func() map[string]string {
	m := make(map[string]string, len(CurrencySymbols))
	for _, cs := range CurrencySymbols {
		m[cs.Code] = cs.Symbol
	}
	return m
}()

// FormatPrice renders a price for prompts and templates, e.g. "£51.77" or
// "12.00 CHF". A nil price renders as fallback.
func FormatPrice(price *float64, currency, fallback string) string {
	if price == nil {
		return fallback
	}
	if sym, ok := symbolByCode[currency]; ok {
		return fmt.Sprintf("%s%.2f", sym, *price)
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", *price)
	}
	return fmt.Sprintf("%.2f %s", *price, currency)
}
