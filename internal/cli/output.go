// Package cli provides output formatting for the matome CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/pkg/utils"
)

// OutputFormat is the format for cluster output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per cluster.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteClusters writes a clustering response to w in the given format.
func WriteClusters(w io.Writer, response *models.ClusterResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeClustersCompact(w, response)
		return nil
	default:
		writeClustersText(w, response)
		return nil
	}
}

func writeClustersText(w io.Writer, response *models.ClusterResponse) {
	fmt.Fprintf(w, "\nGrouped %s into %s in %dms (threshold %.2f)\n\n",
		utils.Plural(response.TotalItems, "item"), utils.Plural(response.TotalClusters, "cluster"),
		response.ElapsedMS, response.Threshold)
	for i, c := range response.Clusters {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, c.Title, utils.Plural(len(c.Items), "item"))
		for _, it := range c.Items {
			writeItem(w, it)
		}
		fmt.Fprintln(w)
	}
	if len(response.Errors) > 0 {
		fmt.Fprintln(w, "--- Feed errors ---")
		for _, e := range response.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

func writeItem(w io.Writer, it *models.Item) {
	line := "  • " + utils.Truncate(it.Title, 100)
	var meta []string
	if it.Source != "" {
		meta = append(meta, it.Source)
	}
	if ts, ok := it.Published(); ok {
		meta = append(meta, ts.Format("2006-01-02 15:04"))
	} else if it.PublishedAt != "" {
		meta = append(meta, it.PublishedAt)
	}
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	fmt.Fprintln(w, line)
	if it.Link != "" {
		fmt.Fprintf(w, "    %s\n", it.Link)
	}
}

// writeClustersCompact prints "<n>\t<title>\t<id,id,...>" per cluster.
func writeClustersCompact(w io.Writer, response *models.ClusterResponse) {
	for _, c := range response.Clusters {
		ids := make([]string, len(c.Items))
		for i, it := range c.Items {
			ids[i] = it.ID
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", len(c.Items), c.Title, strings.Join(ids, ","))
	}
}

// ReadItems decodes items from JSON. Both a bare array and an object with an "items"
// field (the clustering request shape) are accepted.
func ReadItems(r io.Reader) ([]*models.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []*models.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		return items, nil
	}
	var query models.ClusterQuery
	if err := json.Unmarshal(data, &query); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return query.Items, nil
}
