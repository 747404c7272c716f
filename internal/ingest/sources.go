package ingest

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// sourcesFile is the YAML layout of the bootstrap sources file.
type sourcesFile struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file.
func LoadSources(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sources: read %s", path)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates source definitions.
func ParseSources(data []byte) ([]model.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "sources: parse yaml")
	}
	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		s.BaseURL = strings.TrimSpace(s.BaseURL)
		if s.Name == "" {
			return nil, &model.ValidationError{Field: "sources[].name", Reason: "is required"}
		}
		if s.BaseURL == "" {
			return nil, &model.ValidationError{Field: "sources[" + s.Name + "].base_url", Reason: "is required"}
		}
		switch s.Kind {
		case "":
			s.Kind = model.SourceKindCrawl
		case model.SourceKindCrawl, model.SourceKindBrowser:
		default:
			return nil, &model.ValidationError{Field: "sources[" + s.Name + "].kind", Reason: "must be crawl or browser"}
		}
		if seen[s.BaseURL] {
			return nil, &model.ValidationError{Field: "sources[" + s.Name + "].base_url", Reason: "is duplicated"}
		}
		seen[s.BaseURL] = true
	}
	return f.Sources, nil
}

// SeedSources registers sources that do not exist yet. Existing sources,
// matched by base URL, are left untouched. It returns the number created.
func SeedSources(ctx context.Context, st store.Store, sources []model.Source) (int, error) {
	created := 0
	err := st.InTx(ctx, func(tx store.Tx) error {
		for i := range sources {
			_, err := tx.GetSourceByBaseURL(ctx, sources[i].BaseURL)
			if err == nil {
				continue
			}
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			src := sources[i]
			if err := tx.CreateSource(ctx, &src); err != nil {
				return err
			}
			sources[i].ID = src.ID
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
