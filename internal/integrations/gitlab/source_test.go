package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

const projectJSON = `{"id":42,"name":"Widgets","path":"widgets","path_with_namespace":"acme/widgets",
	"description":"All the widgets","web_url":"https://gitlab.example.com/acme/widgets",
	"http_url_to_repo":"https://gitlab.example.com/acme/widgets.git"}`

func newTestSource(t *testing.T, routes map[string]string) *Source {
	t.Helper()
	// Dispatch on the decoded path; the project path arrives URL-encoded.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v4/projects/acme/widgets" {
			w.Write([]byte(projectJSON))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSource(newTestClient(srv.URL, "acme/widgets"), nil)
}

func TestSource_Project(t *testing.T) {
	s := newTestSource(t, nil)

	p, err := s.Project(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", p.Path)
	assert.Equal(t, "All the widgets", p.Description)
	assert.Equal(t, "https://gitlab.example.com/acme/widgets.git", p.HTTPURL)
}

func TestSource_ListIssuesSortedAndMapped(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/v4/projects/acme/widgets/issues": `[
			{"iid":3,"title":"Third","state":"closed","author":{"username":"bob","name":"Bob"},
			 "milestone":{"iid":2,"project_id":42},"labels":["bug"]},
			{"iid":1,"title":"First","state":"opened","milestone":{"iid":5,"group_id":9}}
		]`,
	})

	items, err := s.ListItems(context.Background(), tracker.KindIssue)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 1, items[0].Number)
	assert.Equal(t, tracker.StateOpen, items[0].State)
	assert.Zero(t, items[0].MilestoneNumber, "group milestones are not migrated")

	assert.Equal(t, 3, items[1].Number)
	assert.Equal(t, tracker.StateClosed, items[1].State)
	assert.Equal(t, 2, items[1].MilestoneNumber)
	assert.Equal(t, "bob", items[1].AuthorHandle)
	assert.Equal(t, []string{"bug"}, items[1].Labels)
}

func TestSource_ListMilestones(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/v4/projects/acme/widgets/milestones": `[
			{"iid":2,"title":"v2","state":"active","due_date":"2024-06-30"},
			{"iid":1,"title":"v1","state":"closed"}
		]`,
	})

	items, err := s.ListItems(context.Background(), tracker.KindMilestone)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, tracker.StateClosed, items[0].State)
	assert.Nil(t, items[0].DueDate)
	assert.Equal(t, tracker.StateOpen, items[1].State)
	require.NotNil(t, items[1].DueDate)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), *items[1].DueDate)
}

func TestSource_ListLabelsStripsHash(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/v4/projects/acme/widgets/labels": `[{"name":"priority::high","color":"#FF0000"}]`,
	})

	labels, err := s.ListLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []tracker.Label{{Name: "priority::high", Color: "FF0000"}}, labels)
}

func TestSource_Relationships(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/graphql": `{"data":{"project":{"workItem":{"widgets":[{"type":"HIERARCHY","children":{"nodes":[
			{"iid":"4","title":"Subtask","webUrl":"https://gitlab.example.com/acme/widgets/-/work_items/4","workItemType":{"name":"Task"}}
		]}}]}}}}`,
		"/api/v4/projects/acme/widgets/issues/1/links": `[
			{"iid":2,"title":"Blocked one","project_id":42,"link_type":"blocks"},
			{"iid":5,"title":"Blocker","project_id":42,"link_type":"is_blocked_by"},
			{"iid":6,"title":"Sibling","project_id":42,"link_type":"relates_to"},
			{"iid":9,"title":"Elsewhere","project_id":77,"link_type":"blocks",
			 "web_url":"https://gitlab.example.com/other/proj/-/issues/9","references":{"full":"other/proj#9"}}
		]`,
	})

	edges, err := s.Relationships(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, edges, 5)

	assert.Equal(t, tracker.Edge{Kind: tracker.EdgeParentOf, From: 1, To: 4, ToTitle: "Subtask"}, edges[0])
	assert.Equal(t, tracker.EdgeBlocks, edges[1].Kind)
	assert.Equal(t, 2, edges[1].To)
	assert.Equal(t, tracker.EdgeBlockedBy, edges[2].Kind)
	assert.Equal(t, tracker.EdgeRelatesTo, edges[3].Kind)
	assert.Equal(t, "Sibling", edges[3].ToTitle)

	assert.Equal(t, tracker.EdgeCrossProject, edges[4].Kind)
	require.NotNil(t, edges[4].External)
	assert.Equal(t, "other/proj", edges[4].External.Path)
	assert.Equal(t, 9, edges[4].External.Number)
	assert.Equal(t, "blocks", edges[4].LinkType)
}

func TestSource_RelationshipsSurviveHierarchyFailure(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/graphql": `{"errors":[{"message":"workItem is not available"}]}`,
		"/api/v4/projects/acme/widgets/issues/1/links": `[{"iid":2,"title":"Sibling","project_id":42,"link_type":"relates_to"}]`,
	})

	edges, err := s.Relationships(context.Background(), 1)
	var incomplete *tracker.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "child items", incomplete.Missing)
	assert.Contains(t, err.Error(), "workItem is not available")
	require.Len(t, edges, 1)
	assert.Equal(t, tracker.EdgeRelatesTo, edges[0].Kind)
}

func TestSource_CommentsKeepSystemNotes(t *testing.T) {
	s := newTestSource(t, map[string]string{
		"/api/v4/projects/acme/widgets/issues/1/notes": `[
			{"id":2,"body":"closed","system":true,"created_at":"2024-01-02T00:00:00Z"},
			{"id":1,"body":"hello","author":{"username":"jd","name":"Jane"},"created_at":"2024-01-01T00:00:00Z"}
		]`,
	})

	comments, err := s.Comments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "hello", comments[0].Body)
	assert.Equal(t, "Jane", comments[0].AuthorName)
	assert.True(t, comments[1].System)
}

func TestProjectPathFromURL(t *testing.T) {
	assert.Equal(t, "group/sub/proj", projectPathFromURL("https://gitlab.com/group/sub/proj/-/issues/3"))
	assert.Equal(t, "g/p", projectPathFromURL("http://127.0.0.1:8080/g/p/-/work_items/1"))
}

func TestParseProjectID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"acme/widgets", "acme/widgets", false},
		{"/acme/widgets/", "acme/widgets", false},
		{"1234", "1234", false},
		{"widgets", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProjectID(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
