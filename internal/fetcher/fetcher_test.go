package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body string
	err  error
	urls []string
}

func (s *stubFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		location string
		want     Format
		wantErr  bool
	}{
		{"out/books.json", FormatJSON, false},
		{"out/books.JSONL", FormatJSONL, false},
		{"https://example.com/export.ndjson?token=1", FormatJSONL, false},
		{"ftp://ftp.example.com/products.csv", FormatCSV, false},
		{"products.xlsx", FormatXLSX, false},
		{"products.xml", "", true},
		{"products", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := DetectFormat(tt.location)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, Format(""), f)

	_, err = ParseFormat("parquet")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoader_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"One","source_url":"/1"}`+"\n"), 0o644))

	records, err := (&Loader{}).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "One", records[0].Title.String())
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := (&Loader{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"), "")
	assert.ErrorContains(t, err, "fetcher: open")
}

func TestLoader_RoutesBySchemeAndFormatOverride(t *testing.T) {
	httpStub := &stubFetcher{body: "title,url\nOne,/1\n"}
	ftpStub := &stubFetcher{body: `[{"title":"Two","source_url":"/2"}]`}
	l := &Loader{HTTP: httpStub, FTP: ftpStub}
	ctx := context.Background()

	records, err := l.Load(ctx, "https://example.com/export?id=7", FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/1", records[0].SourceURL.String())
	assert.Equal(t, []string{"https://example.com/export?id=7"}, httpStub.urls)

	records, err = l.Load(ctx, "ftp://ftp.example.com/out.json", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Two", records[0].Title.String())
}

func TestLoader_MissingFetcher(t *testing.T) {
	_, err := (&Loader{}).Load(context.Background(), "https://example.com/a.json", "")
	assert.ErrorContains(t, err, "no http fetcher")
}

func TestLoader_DownloadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := (&Loader{HTTP: &stubFetcher{err: boom}}).Load(context.Background(), "http://example.com/a.json", "")
	assert.ErrorIs(t, err, boom)
}

func TestLoader_HTTPEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Remote","price_text":"$5","source_url":"/r"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	l := &Loader{HTTP: newTestFetcher()}
	records, err := l.Load(context.Background(), srv.URL+"/records.json", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "$5", records[0].PriceText.String())
}

func TestDecode_UnknownFormat(t *testing.T) {
	_, err := Decode(context.Background(), strings.NewReader(""), Format("yaml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
