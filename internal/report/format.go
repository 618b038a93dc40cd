package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
)

// JSON returns the indented JSON form of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r.Snapshot(), "", "  ")
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	s := r.Snapshot()
	var b strings.Builder

	status := "✓ Migration completed successfully"
	if !s.Success {
		status = "✗ Migration finished with problems"
	}
	fmt.Fprintf(&b, "# Migration report\n\n")
	fmt.Fprintf(&b, "%s\n\n", status)
	fmt.Fprintf(&b, "- **Source:** %s\n", s.Source)
	fmt.Fprintf(&b, "- **Target:** %s\n", s.Target)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- **Reached state:** %s\n", s.State)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", s.Error)
	}

	b.WriteString("\n## Issues\n\n")
	writeCollection(&b, s.Issues)
	b.WriteString("\n## Milestones\n\n")
	writeCollection(&b, s.Milestones)

	b.WriteString("\n## Labels\n\n")
	fmt.Fprintf(&b, "- Source labels: %s\n", humanize.Comma(int64(s.Labels.Source)))
	fmt.Fprintf(&b, "- Existing on target: %s (reused: %s)\n", humanize.Comma(int64(s.Labels.Existing)), humanize.Comma(int64(s.Labels.Reused)))
	fmt.Fprintf(&b, "- Created: %s\n", humanize.Comma(int64(s.Labels.Created)))

	b.WriteString("\n## Attachments\n\n")
	fmt.Fprintf(&b, "- Uploaded: %s (%s)\n", humanize.Comma(int64(s.Attachments.Uploaded)), humanize.Bytes(uint64(s.Attachments.Bytes)))
	fmt.Fprintf(&b, "- Failed: %s\n", humanize.Comma(int64(s.Attachments.Failed)))

	b.WriteString("\n## Relationships\n\n")
	fmt.Fprintf(&b, "- Created: %d\n", s.Relationships.Created)
	fmt.Fprintf(&b, "- Already present: %d\n", s.Relationships.Existing)
	fmt.Fprintf(&b, "- Skipped: %d\n", s.Relationships.Skipped)
	for _, e := range s.SkippedEdges {
		fmt.Fprintf(&b, "  - %s\n", e)
	}

	if len(s.Mismatches) > 0 {
		b.WriteString("\n## Mismatches\n\n")
		for _, m := range s.Mismatches {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings (%d)\n\n", len(s.Warnings))
		for _, w := range s.Warnings {
			if w.Where != "" {
				fmt.Fprintf(&b, "- [%s] %s: %s\n", w.Category, w.Where, w.Message)
			} else {
				fmt.Fprintf(&b, "- [%s] %s\n", w.Category, w.Message)
			}
		}
	}
	return b.String()
}

func writeCollection(b *strings.Builder, c Collection) {
	b.WriteString("| | Total | Open | Closed |\n|---|---|---|---|\n")
	fmt.Fprintf(b, "| GitLab | %d | %d | %d |\n", c.Source.Total, c.Source.Open, c.Source.Closed)
	fmt.Fprintf(b, "| GitHub | %d | %d | %d |\n", c.Target.Total, c.Target.Open, c.Target.Closed)
	if c.Placeholders > 0 {
		fmt.Fprintf(b, "\nPlaceholders: %d\n", c.Placeholders)
	}
}

// ColorsEnabled returns whether terminal colors should be used.
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// Render returns the markdown report styled for a terminal.
func (r *Report) Render() string {
	md := r.Markdown()
	if !ColorsEnabled() {
		return md
	}
	rendered, err := glamour.RenderWithEnvironmentConfig(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(rendered)
}

// Write stores the report at path. The format follows the file extension:
// .json writes JSON, anything else markdown.
func (r *Report) Write(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = r.JSON()
	default:
		data = []byte(r.Markdown())
	}
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
