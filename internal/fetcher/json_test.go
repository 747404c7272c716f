package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

func TestDecodeJSONArray_Records(t *testing.T) {
	input := `[
		{"title": "A Light in the Attic", "price_text": "£51.77", "source_url": "a-light/index.html", "rating": "Three"},
		{"title": "Tipping the Velvet", "price_text": 53.74, "source_url": "tipping/index.html", "review_count": 12}
	]`

	records, err := collect(DecodeJSONArray[model.Record](context.Background(), strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A Light in the Attic", records[0].Title.String())
	assert.Equal(t, "£51.77", records[0].PriceText.String())
	assert.Equal(t, "Three", records[0].Rating.String())
	assert.Equal(t, "53.74", records[1].PriceText.String())
	assert.Equal(t, "12", records[1].ReviewCount.String())
}

func TestDecodeJSONArray_Empty(t *testing.T) {
	records, err := collect(DecodeJSONArray[model.Record](context.Background(), strings.NewReader("")))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeJSONArray_NotAnArray(t *testing.T) {
	_, err := collect(DecodeJSONArray[model.Record](context.Background(), strings.NewReader(`{"title": "x"}`)))
	assert.ErrorContains(t, err, "expected '['")
}

func TestDecodeJSONArray_Malformed(t *testing.T) {
	_, err := collect(DecodeJSONArray[model.Record](context.Background(), strings.NewReader(`[{"title": }]`)))
	assert.ErrorContains(t, err, "decode element")
}

func TestDecodeJSONLines(t *testing.T) {
	input := "{\"title\": \"One\", \"source_url\": \"/1\"}\n\n  {\"title\": \"Two\", \"source_url\": \"/2\"}\n"
	records, err := collect(DecodeJSONLines[model.Record](context.Background(), strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Two", records[1].Title.String())
}

func TestDecodeJSONLines_BadLine(t *testing.T) {
	input := "{\"title\": \"One\"}\nnot json\n"
	_, err := collect(DecodeJSONLines[model.Record](context.Background(), strings.NewReader(input)))
	assert.ErrorContains(t, err, "line 2")
}

func TestDecodeJSONArray_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collect(DecodeJSONArray[model.Record](ctx, strings.NewReader(`[{"title": "x"}]`)))
	assert.Error(t, err)
}
