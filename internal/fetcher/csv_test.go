package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV(t *testing.T) {
	input := "name,value\nfoo,1\nbar,2\n"
	headerCh := make(chan []string, 1)
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "value"}, <-headerCh)
	assert.Equal(t, [][]string{{"foo", "1"}, {"bar", "2"}}, rows)
}

func TestStreamCSV_Options(t *testing.T) {
	input := "# exported by spider\n a ; b \n c ; d \n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
		Comment:   '#',
		TrimSpace: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestStreamCSV_Malformed(t *testing.T) {
	_, err := collect(StreamCSV(context.Background(), strings.NewReader("a,\"b\nc"), CSVOptions{}))
	assert.ErrorContains(t, err, "csv: read row")
}

func TestRecordsFromCSV(t *testing.T) {
	input := "\ufeffTitle,Price,URL,Availability,Rating\n" +
		"A Light in the Attic,£51.77,catalogue/a-light/index.html,In stock,Three\n" +
		",,,,\n" +
		"\"Sapiens, A Brief History\",£54.23,catalogue/sapiens/index.html,In stock,Five\n"

	records, err := RecordsFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A Light in the Attic", records[0].Title.String())
	assert.Equal(t, "£51.77", records[0].PriceText.String())
	assert.Equal(t, "catalogue/a-light/index.html", records[0].SourceURL.String())
	assert.Equal(t, "Three", records[0].Rating.String())
	assert.Equal(t, "Sapiens, A Brief History", records[1].Title.String())
}

func TestRecordsFromCSV_Empty(t *testing.T) {
	records, err := RecordsFromCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}
