// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ExportEntry is the export form of an Entry: result records use the
// stable wire keys of types.ResultRecord.
type ExportEntry struct {
	ID        string          `json:"id" yaml:"id"`
	Query     string          `json:"query" yaml:"query"`
	CreatedAt string          `json:"created_at" yaml:"created_at"`
	Results   types.ResultSet `json:"results" yaml:"results"`
}

const exportLimit = 100000

// Export writes all of userID's entries to w as "yaml" or "json".
func (s *Store) Export(ctx context.Context, userID, format string, w io.Writer) error {
	entries, err := s.List(ctx, userID, exportLimit)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	out := make([]ExportEntry, len(entries))
	for i, e := range entries {
		out[i] = ExportEntry{
			ID:        e.ID,
			Query:     e.Query,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Results:   types.NewResultSet(e.Documents),
		}
	}

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case "json":
		data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	default:
		return fmt.Errorf("unknown export format %q (want yaml or json)", format)
	}
}
