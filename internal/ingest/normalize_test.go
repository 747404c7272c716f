package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"£51.77", ptr(51.77)},
		{"$1,299.99", ptr(1299.99)},
		{"Price: 12 EUR", ptr(12.0)},
		{"₹ 2,500", ptr(2500.0)},
		{"51.", ptr(51.0)},
		{"free", nil},
		{"", nil},
		{",", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePrice(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestInferCurrency(t *testing.T) {
	tests := []struct {
		name      string
		priceText string
		symbol    string
		want      string
	}{
		{"symbol in text", "£51.77", "", "GBP"},
		{"euro", "12,00 €", "", "EUR"},
		{"explicit symbol wins", "$10", "¥", "JPY"},
		{"explicit iso code", "10", "CHF", "CHF"},
		{"iso code in text", "10.00 CAD", "", "CAD"},
		{"lowercase words ignored", "price for all", "", "USD"},
		{"unknown code", "10 XYZ", "", "USD"},
		{"default", "10", "", "USD"},
		{"australian dollar", "A$19.95", "", "AUD"},
		{"canadian dollar", "C$5", "", "CAD"},
		{"first symbol wins", "€12 (about £10)", "", "EUR"},
		{"first symbol wins reversed", "£10 (about €12)", "", "GBP"},
		{"dollar after pound", "£10 / $13", "", "GBP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferCurrency(tt.priceText, tt.symbol, "USD"))
		})
	}
}

func TestInferCurrency_Deterministic(t *testing.T) {
	for range 50 {
		require.Equal(t, "JPY", InferCurrency("¥1200 or $9 or €8", "", "USD"))
	}
}

func TestNormalizeURL(t *testing.T) {
	base := "http://books.toscrape.com/catalogue/page-1.html"
	tests := []struct {
		raw  string
		want string
	}{
		{"a-light-in-the-attic_1000/index.html", "http://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html"},
		{"/media/cache/fe/72/img.jpg", "http://books.toscrape.com/media/cache/fe/72/img.jpg"},
		{"../../media/x.jpg", "http://books.toscrape.com/media/x.jpg"},
		{"https://example.com/p/1#reviews", "https://example.com/p/1"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeURL("http://[::1", base)
	assert.Error(t, err)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "A Light in the Attic", CleanText("  A   Light\n in\tthe Attic "))
	assert.Equal(t, "Bold and italic", CleanText("<p><b>Bold</b> and <i>italic</i></p>"))
	assert.Equal(t, "Tom & Jerry", CleanText("Tom &amp; Jerry"))
	assert.Equal(t, "caf\u00e9", CleanText("cafe\u0301"))
	assert.Equal(t, "", CleanText(""))
}

func TestParseRating(t *testing.T) {
	assert.Equal(t, ptr(3.0), ParseRating("Three"))
	assert.Equal(t, ptr(5.0), ParseRating("star-rating Five"))
	assert.Equal(t, ptr(4.0), ParseRating("4"))
	assert.Equal(t, ptr(4.5), ParseRating("4.5"))
	assert.Equal(t, ptr(4.4), ParseRating("4.4"))
	assert.Equal(t, ptr(4.5), ParseRating("4.5/5"))
	assert.Equal(t, ptr(3.7), ParseRating("3.7 out of 5"))
	assert.Equal(t, ptr(5.0), ParseRating("9"))
	assert.Nil(t, ParseRating(""))
	assert.Nil(t, ParseRating("unrated"))
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, ptr(1234), ParseCount("1,234 reviews"))
	assert.Equal(t, ptr(0), ParseCount("0"))
	assert.Nil(t, ParseCount("none"))
}
