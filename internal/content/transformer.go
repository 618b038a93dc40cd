// Package content rewrites GitLab markdown into the body text posted on GitHub.
package content

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/similigh/gl2gh/internal/attachments"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/numbering"
)

// TimestampLayout is the single format used for every migrated timestamp.
const TimestampLayout = "2006-01-02 15:04:05Z"

// refPattern matches a bare "#123" that is not part of a word, a path,
// an HTML entity or a qualified group/project#123 reference.
var refPattern = regexp.MustCompile(`(^|[^\w/&#!\]\[])#(\d+)\b`)

// linkPattern matches an inline or reference-style markdown link. Text
// inside it is left alone so no link ends up nested in another.
var linkPattern = regexp.MustCompile(`\[[^\[\]]*\](\([^)]*\)|\[[^\]]*\])`)

// Transformer turns source text into target text: attachments are relocated,
// issue references rewritten and provenance headers added.
type Transformer struct {
	Project   *tracker.Project
	Issues    *numbering.Map // may be partial while issues are being created
	Relocator *attachments.Relocator

	// OnAttachmentError receives every locator that could not be relocated.
	OnAttachmentError func(where string, err *attachments.Error)
}

// Transform relocates attachments and rewrites references in text.
// where identifies the text in warnings, e.g. "issue #3".
func (t *Transformer) Transform(ctx context.Context, where, text string) string {
	if text == "" {
		return text
	}
	if t.Relocator != nil {
		var errs []*attachments.Error
		text, errs = t.Relocator.Rewrite(ctx, text)
		for _, e := range errs {
			if t.OnAttachmentError != nil {
				t.OnAttachmentError(where, e)
			}
		}
	}
	return t.rewriteRefs(text)
}

// IssueBody builds the complete body for a migrated issue.
func (t *Transformer) IssueBody(ctx context.Context, item *tracker.Item, edges []tracker.Edge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Migrated from GitLab issue #%d**\n", item.Number)
	fmt.Fprintf(&b, "**Original Author:** %s\n", author(item.AuthorName, item.AuthorHandle))
	fmt.Fprintf(&b, "**Created:** %s\n", FormatTimestamp(item.CreatedAt))
	fmt.Fprintf(&b, "**GitLab URL:** %s\n\n", item.WebURL)
	b.WriteString("---\n\n")
	b.WriteString(t.Transform(ctx, fmt.Sprintf("issue #%d", item.Number), item.Body))
	b.WriteString(t.CrossLinks(edges))
	return b.String()
}

// CommentBody builds the body for a migrated comment on issue number.
func (t *Transformer) CommentBody(ctx context.Context, number int, c *tracker.Comment) string {
	if c.System {
		return fmt.Sprintf("**System note:** %s\n\n", c.Body)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Comment by** %s **on** %s\n\n", author(c.AuthorName, c.AuthorHandle), FormatTimestamp(c.CreatedAt))
	b.WriteString("---\n\n")
	b.WriteString(t.Transform(ctx, fmt.Sprintf("comment on issue #%d", number), c.Body))
	return b.String()
}

// MilestoneDescription relocates attachments and references in a milestone
// description. Milestones get no provenance header.
func (t *Transformer) MilestoneDescription(ctx context.Context, item *tracker.Item) string {
	return t.Transform(ctx, fmt.Sprintf("milestone #%d", item.Number), item.Body)
}

// CrossLinks renders the edges that never become native links.
func (t *Transformer) CrossLinks(edges []tracker.Edge) string {
	var lines []string
	for _, e := range edges {
		switch {
		case e.External != nil:
			lines = append(lines, fmt.Sprintf("- **%s**: [%s#%d](%s) - %s",
				relationName(e), e.External.Path, e.External.Number, e.External.WebURL, e.External.Title))
		case !e.Kind.Structural():
			lines = append(lines, fmt.Sprintf("- **%s**: #%d - %s", relationName(e), e.To, e.ToTitle))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n---\n\n**Cross-linked Issues:**\n\n" + strings.Join(lines, "\n") + "\n"
}

func relationName(e tracker.Edge) string {
	switch e.LinkType {
	case "blocks":
		return "Blocks"
	case "is_blocked_by":
		return "Blocked by"
	case "relates_to", "":
		return "Related to"
	case "child_of":
		return "Child"
	default:
		return fmt.Sprintf("Linked (%s)", e.LinkType)
	}
}

func author(name, handle string) string {
	if handle == "" {
		return name
	}
	return fmt.Sprintf("%s (@%s)", name, handle)
}

// FormatTimestamp renders t in UTC as "2006-01-02 15:04:05Z".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(TimestampLayout)
}

// rewriteRefs rewrites "#N" outside code. Resolved numbers point at the
// target item; the rest link back to the source issue.
func (t *Transformer) rewriteRefs(text string) string {
	lines := strings.SplitAfter(text, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = t.rewriteLine(line)
	}
	return strings.Join(lines, "")
}

func (t *Transformer) rewriteLine(line string) string {
	parts := strings.Split(line, "`")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = t.rewriteOutsideLinks(parts[i])
	}
	return strings.Join(parts, "`")
}

func (t *Transformer) rewriteOutsideLinks(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(s, -1) {
		b.WriteString(refPattern.ReplaceAllStringFunc(s[last:loc[0]], t.rewriteRef))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(refPattern.ReplaceAllStringFunc(s[last:], t.rewriteRef))
	return b.String()
}

func (t *Transformer) rewriteRef(match string) string {
	m := refPattern.FindStringSubmatch(match)
	prefix, num := m[1], m[2]
	n, err := strconv.Atoi(num)
	if err != nil {
		return match
	}
	if target, ok := t.Issues.Target(n); ok {
		return fmt.Sprintf("%s#%d", prefix, target)
	}
	if t.Project == nil {
		return match
	}
	return fmt.Sprintf("%s[%s#%d](%s/-/issues/%d)", prefix, t.Project.Path, n, strings.TrimSuffix(t.Project.WebURL, "/"), n)
}
