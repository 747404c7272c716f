// Package fetcher loads scraper output from local files, HTTP or FTP and
// decodes it into normalized records. JSON arrays, JSON lines, CSV and
// XLSX are supported.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Format is a record file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ErrUnknownFormat is returned when a format cannot be determined.
var ErrUnknownFormat = eris.New("fetcher: unknown record format")

// DetectFormat guesses the format from a path or URL extension.
func DetectFormat(location string) (Format, error) {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Wrapf(ErrUnknownFormat, "%s", location)
}

// ParseFormat validates a user-supplied format name. An empty name means
// "detect from the location".
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", FormatJSON, FormatJSONL, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", eris.Wrapf(ErrUnknownFormat, "%q", name)
}

// Loader opens record files by location: http(s)://, ftp:// or a local
// path.
type Loader struct {
	HTTP Fetcher
	FTP  Fetcher
}

// Open returns a reader for location.
func (l *Loader) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			if l.HTTP == nil {
				return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
			}
			return l.HTTP.Download(ctx, location)
		case "ftp":
			if l.FTP == nil {
				return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
			}
			return l.FTP.Download(ctx, location)
		}
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", location)
	}
	return f, nil
}

// Load reads every record at location. An empty format is detected from
// the extension.
func (l *Loader) Load(ctx context.Context, location string, format Format) ([]model.Record, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(location); err != nil {
			return nil, err
		}
	}

	rc, err := l.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	records, err := Decode(ctx, rc, format)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode %s", location)
	}
	zap.L().Info("fetcher: loaded records",
		zap.String("location", location),
		zap.String("format", string(format)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Decode reads records of the given format from r.
func Decode(ctx context.Context, r io.Reader, format Format) ([]model.Record, error) {
	switch format {
	case FormatJSON:
		return collect(DecodeJSONArray[model.Record](ctx, r))
	case FormatJSONL:
		return collect(DecodeJSONLines[model.Record](ctx, r))
	case FormatCSV:
		return RecordsFromCSV(ctx, r)
	case FormatXLSX:
		return RecordsFromXLSX(r)
	}
	return nil, eris.Wrapf(ErrUnknownFormat, "%q", format)
}

// collect drains a value channel and its error channel.
func collect[T any](out <-chan T, errs <-chan error) ([]T, error) {
	var items []T
	for item := range out {
		items = append(items, item)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return items, nil
}

// rowsToRecords maps header-keyed rows onto records. Header names are
// matched case-insensitively.
func rowsToRecords(header []string, rows [][]string) []model.Record {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(h))
	}
	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(keys))
		empty := true
		for i, k := range keys {
			if i < len(row) {
				m[k] = row[i]
				if strings.TrimSpace(row[i]) != "" {
					empty = false
				}
			}
		}
		if empty {
			continue
		}
		records = append(records, model.RecordFromRow(m))
	}
	return records
}
