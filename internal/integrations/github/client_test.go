package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Options{
		Repo:        "acme/widgets",
		APIURL:      srv.URL,
		ReleaseTag:  "gitlab-issue-attachments",
		ReleaseName: "GitLab attachments",
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_InvalidRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/widgets", "acme/", "acme/widgets/extra"} {
		_, err := NewClient(context.Background(), Options{Repo: repo})
		if err == nil {
			t.Errorf("expected error for repo %q", repo)
		}
	}
}

func TestCreateCommentValidation(t *testing.T) {
	client := &Client{client: nil} // nil client for validation testing

	err := client.CreateComment(context.Background(), 1, "")
	if err == nil {
		t.Error("Expected error for empty comment body")
	}

	err = client.CreateComment(context.Background(), 1, "   ")
	if err == nil {
		t.Error("Expected error for whitespace-only comment body")
	}
}

func TestSanitizeDescription(t *testing.T) {
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "A widget factory", "A widget factory"},
		{"newlines", "line one\r\nline two\nthree\rfour", "line one line two three four"},
		{"control chars", "bell\x07 and\x1b escape", "bell and escape"},
		{"tab kept", "a\tb", "a\tb"},
		{"capped", string(long), string(long[:maxDescriptionLength])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeDescription(tt.in))
		})
	}
}

func TestGraphQLEndpointFor(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.github.com/", defaultGraphQLEndpoint},
		{"https://ghe.example.com/api/v3/", "https://ghe.example.com/api/graphql"},
		{"http://127.0.0.1:8080/", "http://127.0.0.1:8080/graphql"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.base)
		require.NoError(t, err)
		assert.Equal(t, tt.want, graphQLEndpointFor(u), tt.base)
	}
}

func TestRepositoryExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	c := newTestClient(t, mux)

	exists, err := c.RepositoryExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRepository_UserFallback(t *testing.T) {
	var created map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"login": "acme"})
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusCreated, map[string]interface{}{"name": "widgets"})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.CreateRepository(context.Background(), "Widgets\nand more"))
	assert.Equal(t, "widgets", created["name"])
	assert.Equal(t, "Widgets and more", created["description"])
	assert.Equal(t, true, created["private"])
	assert.Equal(t, true, created["has_issues"])
}

func TestCreateRepository_OwnerMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"login": "someone-else"})
	})
	c := newTestClient(t, mux)

	err := c.CreateRepository(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "someone-else")
}

func TestCreateItem_Issue(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"number":   3,
			"id":       303,
			"html_url": "https://github.com/acme/widgets/issues/3",
		})
	})
	c := newTestClient(t, mux)

	created, err := c.CreateItem(context.Background(), tracker.KindIssue, tracker.Payload{
		Title:     "Crash on start",
		Body:      "body",
		Labels:    []string{"bug"},
		Milestone: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created.Number)
	assert.Equal(t, int64(303), created.ID)
	assert.Equal(t, "Crash on start", got["title"])
	assert.Equal(t, []interface{}{"bug"}, got["labels"])
	assert.Equal(t, float64(2), got["milestone"])
}

func TestCreateItem_MilestoneKeepsState(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/milestones", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]interface{}{"number": 1, "id": 11})
	})
	c := newTestClient(t, mux)

	created, err := c.CreateItem(context.Background(), tracker.KindMilestone, tracker.Payload{
		Title: "v1.0",
		State: tracker.StateClosed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Number)
	assert.Equal(t, "closed", got["state"])
	assert.NotContains(t, got, "due_on")
}

func TestListItems_SkipsPullRequestsAcrossPages(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/issues?state=all&page=2>; rel="next"`, srvURL))
			writeJSON(w, http.StatusOK, []map[string]interface{}{
				{"number": 1, "id": 101, "title": "one", "state": "open"},
				{"number": 2, "id": 102, "title": "pr", "state": "open", "pull_request": map[string]string{"url": "x"}},
			})
		default:
			writeJSON(w, http.StatusOK, []map[string]interface{}{
				{"number": 3, "id": 103, "title": "three", "state": "closed"},
			})
		}
	})
	c := newTestClient(t, mux)
	srvURL = c.client.BaseURL.String()
	srvURL = srvURL[:len(srvURL)-1]

	items, err := c.ListItems(context.Background(), tracker.KindIssue)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Number)
	assert.Equal(t, 3, items[1].Number)
	assert.Equal(t, tracker.StateClosed, items[1].State)
}

func TestCreateBlockedBy(t *testing.T) {
	var body map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/4/dependencies/blocked_by", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]interface{}{"number": 4})
	})
	mux.HandleFunc("/repos/acme/widgets/issues/5/dependencies/blocked_by", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.CreateBlockedBy(context.Background(), 4, 202))
	assert.Equal(t, float64(202), body["issue_id"])

	err := c.CreateBlockedBy(context.Background(), 5, 202)
	assert.ErrorIs(t, err, tracker.ErrAlreadyLinked)
	assert.Contains(t, err.Error(), "Validation Failed")
}

func TestListSubIssues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/1/sub_issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{{"id": 7}, {"id": 9}})
	})
	c := newTestClient(t, mux)

	ids, err := c.ListSubIssues(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, ids)
}

func TestUploadAttachment_CreatesDraftReleaseOnce(t *testing.T) {
	var releasesCreated, uploads int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, []interface{}{})
			return
		}
		atomic.AddInt32(&releasesCreated, 1)
		var rel map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rel))
		assert.Equal(t, true, rel["draft"])
		assert.Equal(t, "gitlab-issue-attachments", rel["tag_name"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 7})
	})
	mux.HandleFunc("/repos/acme/widgets/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&uploads, 1)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "PNGDATA", string(data))
		name := r.URL.Query().Get("name")
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"browser_download_url": "https://github.com/acme/widgets/releases/download/untagged/" + name,
		})
	})
	c := newTestClient(t, mux)

	u1, err := c.UploadAttachment(context.Background(), []byte("PNGDATA"), "abcdef12_shot.png")
	require.NoError(t, err)
	_, err = c.UploadAttachment(context.Background(), []byte("PNGDATA"), "12345678_other.png")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/releases/download/untagged/abcdef12_shot.png", u1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&releasesCreated))
	assert.Equal(t, int32(2), atomic.LoadInt32(&uploads))
}

func TestDeleteItem_IssueUsesGraphQL(t *testing.T) {
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		queries = append(queries, req.Query)
		if _, ok := req.Variables["issueId"]; ok {
			assert.Equal(t, "I_node2", req.Variables["issueId"])
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"deleteIssue": map[string]interface{}{}}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"repository": map[string]interface{}{"issue": map[string]string{"id": "I_node2"}}},
		})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.DeleteItem(context.Background(), tracker.KindIssue, 2))
	assert.Len(t, queries, 2)
}

func TestDeleteItem_GraphQLErrorsAreReported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data":   map[string]interface{}{"repository": map[string]interface{}{"issue": nil}},
			"errors": []map[string]string{{"type": "NOT_FOUND", "message": "Could not resolve to an Issue"}},
		})
	})
	c := newTestClient(t, mux)

	err := c.DeleteItem(context.Background(), tracker.KindIssue, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not resolve to an Issue")
}

func TestDeleteItem_Milestone(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/milestones/2", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.DeleteItem(context.Background(), tracker.KindMilestone, 2))
	assert.Equal(t, http.MethodDelete, method)
}
