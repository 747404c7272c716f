package ingest

import (
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/catalog-cli/internal/model"
)

var (
	priceRe      = regexp.MustCompile(`[\d,]+\.?\d*`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	countRe      = regexp.MustCompile(`\d[\d,]*`)
)

// starWords maps the CSS class words catalog sites use for star ratings.
var starWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// ParsePrice extracts the first numeric token from s, stripping thousands
// separators. It returns nil when no number is found.
func ParsePrice(s string) *float64 {
	for _, tok := range priceRe.FindAllString(s, -1) {
		tok = strings.ReplaceAll(tok, ",", "")
		if tok == "" || tok == "." {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}

// InferCurrency resolves an ISO 4217 code. An explicit symbol or code wins,
// then any symbol or code found in the price text, then def.
func InferCurrency(priceText, symbol, def string) string {
	for _, s := range []string{symbol, priceText} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if code, ok := isoCode(s); ok {
			return code
		}
		if code, ok := symbolCode(s); ok {
			return code
		}
		for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !isASCIILetter(r) }) {
			if code, ok := isoCode(f); ok {
				return code
			}
		}
	}
	return def
}

// symbolCode returns the code of the symbol that appears first in s. At the
// same position the longer, earlier listed symbol wins.
func symbolCode(s string) (string, bool) {
	best, code := -1, ""
	for _, cs := range model.CurrencySymbols {
		i := strings.Index(s, cs.Symbol)
		if i < 0 {
			continue
		}
		if best < 0 || i < best {
			best, code = i, cs.Code
		}
	}
	return code, best >= 0
}

func isoCode(s string) (string, bool) {
	if len(s) != 3 || strings.ToUpper(s) != s {
		return "", false
	}
	u, err := currency.ParseISO(s)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// NormalizeURL resolves raw against base and drops the fragment. The result
// is the dedup key for products. An empty raw yields "".
func NormalizeURL(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !ref.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		ref = b.ResolveReference(ref)
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}

// CleanText strips markup, applies NFC normalization and collapses
// whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = stripHTML(s)
	}
	s = norm.NFC.String(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripHTML keeps only the text nodes of s and unescapes entities.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String()
			}
			return s
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

// ParseRating accepts a numeric rating ("4", "4.5/5") or a star word
// ("Three", "star-rating Three"). Fractional ratings are kept; the result
// is clamped to 0..5.
func ParseRating(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		if n, ok := starWords[f]; ok {
			return &n
		}
	}
	p := ParsePrice(s)
	if p == nil {
		return nil
	}
	n := max(0, min(5, *p))
	return &n
}

// ParseCount extracts a non-negative integer such as "1,234 reviews".
func ParseCount(s string) *int {
	tok := countRe.FindString(s)
	if tok == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(tok, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}
