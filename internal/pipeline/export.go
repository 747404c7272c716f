package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// ErrUnsupportedFormat is returned for export formats other than json, csv
// and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Export formats.
const (
	ExportJSON = "json"
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

// exportColumns defines the ordered flattened export columns.
var exportColumns = []string{
	"id",
	"source_id",
	"external_id",
	"title",
	"price",
	"currency",
	"source_url",
	"image_url",
	"availability",
	"rating",
	"review_count",
	"category",
	"confidence",
	"description",
	"tags",
	"seo_score",
	"risk_score",
	"flagged",
	"strategy",
	"updated_at",
}

// Export writes the enriched products matching filter to w and returns how
// many were written. Products without an enrichment are never exported.
// json writes the record list; csv and xlsx write one flattened row per
// product with tags joined by ";".
func Export(ctx context.Context, cat store.Catalog, w io.Writer, format string, filter model.ProductFilter) (int, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case ExportJSON, ExportCSV, ExportXLSX:
	default:
		return 0, eris.Wrapf(ErrUnsupportedFormat, "export: %q", format)
	}

	filter.EnrichedOnly = true
	products, err := cat.ListProducts(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "export: list products")
	}

	switch format {
	case ExportJSON:
		err = exportJSON(w, products)
	case ExportCSV:
		err = exportCSV(w, products)
	default:
		err = exportXLSX(w, products)
	}
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

func exportJSON(w io.Writer, products []model.EnrichedProduct) error {
	if products == nil {
		products = []model.EnrichedProduct{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(products), "export: encode json")
}

func exportCSV(w io.Writer, products []model.EnrichedProduct) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for i := range products {
		if err := cw.Write(buildExportRow(&products[i])); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func exportXLSX(w io.Writer, products []model.EnrichedProduct) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Products")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	writeRow := func(cells []string) {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	writeRow(exportColumns)
	for i := range products {
		writeRow(buildExportRow(&products[i]))
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// buildExportRow maps a product onto exportColumns.
func buildExportRow(p *model.EnrichedProduct) []string {
	row := []string{
		strconv.FormatInt(p.ID, 10),       // id
		strconv.FormatInt(p.SourceID, 10), // source_id
		p.ExternalID,                      // external_id
		p.Title,                           // title
		formatFloat(p.Price),              // price
		p.Currency,                        // currency
		p.SourceURL,                       // source_url
		p.ImageURL,                        // image_url
		p.Availability,                    // availability
		formatRating(p.Rating),            // rating
		formatInt(p.ReviewCount),          // review_count
	}

	e := p.Enrichment
	if e == nil {
		return append(row, make([]string, len(exportColumns)-len(row))...)
	}
	desc := ""
	if e.Description != nil {
		desc = *e.Description
	}
	return append(row,
		e.Category,
		strconv.FormatFloat(e.Confidence, 'f', 2, 64),
		desc,
		strings.Join(e.Tags, ";"),
		formatInt(e.SEOScore),
		formatInt(e.RiskScore),
		strconv.FormatBool(e.Flagged),
		e.Strategy,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatRating(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
