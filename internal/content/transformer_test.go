package content

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/similigh/gl2gh/internal/attachments"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/core/tracker/trackertest"
	"github.com/similigh/gl2gh/internal/numbering"
)

const loc = "/uploads/0123456789abcdef0123456789abcdef/shot.png"

func newTransformer(t *testing.T, resolved ...int) (*Transformer, *trackertest.Source, *trackertest.Target) {
	t.Helper()
	src := trackertest.NewSource("group/project")
	dst := trackertest.NewTarget()

	issues := numbering.NewMap(tracker.KindIssue)
	if len(resolved) > 0 {
		alloc := numbering.NewAllocator(tracker.KindIssue, dst, nil)
		res, err := alloc.Allocate(context.Background(), resolved, func(n int) numbering.Slot {
			return fakeSlot{dst: dst}
		})
		require.NoError(t, err)
		issues = res.Map
	}

	p, _ := src.Project(context.Background())
	return &Transformer{
		Project:   p,
		Issues:    issues,
		Relocator: attachments.NewRelocator(attachments.NewCache(src, dst, nil), 2),
	}, src, dst
}

type fakeSlot struct{ dst *trackertest.Target }

func (s fakeSlot) Create(ctx context.Context) (*tracker.Created, error) {
	return s.dst.CreateItem(ctx, tracker.KindIssue, tracker.Payload{Title: "x"})
}
func (s fakeSlot) Complete(ctx context.Context, c *tracker.Created) error { return nil }

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 15, 12, 30, 45, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-01-15 10:30:45Z", FormatTimestamp(ts))
	assert.Equal(t, "unknown", FormatTimestamp(time.Time{}))
}

func TestRewriteRefs(t *testing.T) {
	tr, _, _ := newTransformer(t, 1, 2)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"resolved", "see #2 please", "see #2 please"},
		{"start of text", "#1 is related", "#1 is related"},
		{"unresolved", "blocked on #7.", "blocked on [group/project#7](https://gitlab.example.com/group/project/-/issues/7)."},
		{"qualified reference untouched", "other/proj#7", "other/proj#7"},
		{"url fragment untouched", "https://example.com/page#7", "https://example.com/page#7"},
		{"html entity untouched", "&#39;", "&#39;"},
		{"inline code untouched", "run `make #7` then #1", "run `make #7` then #1"},
		{"fenced code untouched", "```\n#7\n```\n#7", "```\n#7\n```\n[group/project#7](https://gitlab.example.com/group/project/-/issues/7)"},
		{"merge request untouched", "!7 and #1", "!7 and #1"},
		{"parenthesised", "(#1, #2)", "(#1, #2)"},
		{"link text untouched", "[see #7](https://example.com) and #7", "[see #7](https://example.com) and [group/project#7](https://gitlab.example.com/group/project/-/issues/7)"},
		{"reference link text untouched", "[fixes #7][r]", "[fixes #7][r]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.rewriteRefs(tt.in))
		})
	}
}

func TestIssueBody_Header(t *testing.T) {
	tr, _, _ := newTransformer(t)
	item := &tracker.Item{
		Kind:         tracker.KindIssue,
		Number:       3,
		Body:         "Body text",
		CreatedAt:    time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC),
		AuthorName:   "Jane Doe",
		AuthorHandle: "jdoe",
		WebURL:       "https://gitlab.example.com/group/project/-/issues/3",
	}

	got := tr.IssueBody(context.Background(), item, nil)
	want := "**Migrated from GitLab issue #3**\n" +
		"**Original Author:** Jane Doe (@jdoe)\n" +
		"**Created:** 2024-01-15 10:30:45Z\n" +
		"**GitLab URL:** https://gitlab.example.com/group/project/-/issues/3\n\n" +
		"---\n\n" +
		"Body text"
	assert.Equal(t, want, got)
}

func TestIssueBody_CrossLinks(t *testing.T) {
	tr, _, _ := newTransformer(t)
	item := &tracker.Item{Number: 1, Body: "b"}
	edges := []tracker.Edge{
		{Kind: tracker.EdgeRelatesTo, From: 1, To: 4, ToTitle: "Sibling", LinkType: "relates_to"},
		{Kind: tracker.EdgeBlocks, From: 1, To: 2, LinkType: "blocks"},
		{Kind: tracker.EdgeCrossProject, From: 1, LinkType: "blocks", External: &tracker.ExternalRef{
			Path: "other/proj", Number: 9, WebURL: "https://gitlab.example.com/other/proj/-/issues/9", Title: "Upstream",
		}},
	}

	got := tr.IssueBody(context.Background(), item, edges)
	assert.True(t, strings.HasSuffix(got, "b\n\n---\n\n**Cross-linked Issues:**\n\n"+
		"- **Related to**: #4 - Sibling\n"+
		"- **Blocks**: [other/proj#9](https://gitlab.example.com/other/proj/-/issues/9) - Upstream\n"), got)
	assert.NotContains(t, got, "#2")
}

func TestCommentBody(t *testing.T) {
	tr, _, _ := newTransformer(t)
	c := &tracker.Comment{
		AuthorName:   "Jane Doe",
		AuthorHandle: "jdoe",
		CreatedAt:    time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
		Body:         "Looks good",
	}
	assert.Equal(t, "**Comment by** Jane Doe (@jdoe) **on** 2024-02-01 08:00:00Z\n\n---\n\nLooks good",
		tr.CommentBody(context.Background(), 1, c))

	sys := &tracker.Comment{Body: "changed milestone to %v1", System: true}
	assert.Equal(t, "**System note:** changed milestone to %v1\n\n", tr.CommentBody(context.Background(), 1, sys))
}

func TestAttachmentsSharedAcrossIssueAndComment(t *testing.T) {
	tr, src, dst := newTransformer(t)
	ctx := context.Background()

	body := tr.IssueBody(ctx, &tracker.Item{Number: 3, Body: "![a](" + loc + ") and again ![a](" + loc + ")"}, nil)
	comment := tr.CommentBody(ctx, 4, &tracker.Comment{AuthorName: "x", Body: "![a](" + loc + ")"})

	assert.Equal(t, 1, dst.UploadCount())
	assert.Equal(t, int32(1), src.Downloads.Load())

	url := "https://github.example.com/releases/download/attachments/01234567_shot.png"
	assert.Equal(t, 3, strings.Count(body, url)+strings.Count(comment, url))
}

func TestAttachmentFailureReported(t *testing.T) {
	tr, src, _ := newTransformer(t)
	src.FailLocator[loc] = true

	var where []string
	tr.OnAttachmentError = func(w string, err *attachments.Error) {
		where = append(where, w)
	}

	out := tr.MilestoneDescription(context.Background(), &tracker.Item{Number: 2, Body: "![a](" + loc + ")"})
	assert.Equal(t, "![a]("+loc+")", out)
	assert.Equal(t, []string{"milestone #2"}, where)
}

func TestIssueBody_CrossProjectChild(t *testing.T) {
	tr, _, _ := newTransformer(t)
	item := &tracker.Item{Number: 1, Body: "b"}
	edges := []tracker.Edge{
		{Kind: tracker.EdgeCrossProject, From: 1, LinkType: "child_of", External: &tracker.ExternalRef{
			Path: "other/proj", Number: 12, WebURL: "https://gitlab.example.com/other/proj/-/issues/12", Title: "Subtask",
		}},
	}

	got := tr.IssueBody(context.Background(), item, edges)
	assert.Contains(t, got, "- **Child**: [other/proj#12](https://gitlab.example.com/other/proj/-/issues/12) - Subtask\n")
	assert.NotContains(t, got, "Linked (child_of)")
}
