package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestConfigDefaults verifies that default values are applied correctly.
func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.GitLab.URL != "https://gitlab.com" {
		t.Errorf("Expected GitLab.URL to be 'https://gitlab.com', got %s", cfg.GitLab.URL)
	}
	if cfg.Workflow != "migrate" {
		t.Errorf("Expected Workflow to be 'migrate', got %s", cfg.Workflow)
	}
	if cfg.Attachments.Concurrency != 4 {
		t.Errorf("Expected Attachments.Concurrency to be 4, got %d", cfg.Attachments.Concurrency)
	}
	if cfg.Attachments.ReleaseTag != "gitlab-issue-attachments" {
		t.Errorf("Expected Attachments.ReleaseTag to be 'gitlab-issue-attachments', got %s", cfg.Attachments.ReleaseTag)
	}
}

func TestConfigDefaults_TrimsTrailingSlash(t *testing.T) {
	cfg := &Config{GitLab: GitLabConfig{URL: "https://gitlab.example.com/"}}
	cfg.applyDefaults()

	if cfg.GitLab.URL != "https://gitlab.example.com" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", cfg.GitLab.URL)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_GL_TOKEN", "glpat-secret")

	yamlContent := `
gitlab:
  url: https://gitlab.example.com
  token: ${TEST_GL_TOKEN}
  project: group/project
github:
  repo: owner/repo
labels:
  translations:
    - "p_*:priority: *"
git:
  skip: true
cleanup:
  delete_placeholder_issues: true
`
	path := filepath.Join(t.TempDir(), "gl2gh.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GitLab.Token != "glpat-secret" {
		t.Errorf("Expected env var expansion, got '%s'", cfg.GitLab.Token)
	}
	if cfg.GitLab.Project != "group/project" {
		t.Errorf("Expected GitLab.Project 'group/project', got '%s'", cfg.GitLab.Project)
	}
	if len(cfg.Labels.Translations) != 1 || cfg.Labels.Translations[0] != "p_*:priority: *" {
		t.Errorf("Unexpected translations: %v", cfg.Labels.Translations)
	}
	if !cfg.Git.Skip {
		t.Error("Expected Git.Skip to be true")
	}
	if !cfg.Cleanup.DeletePlaceholderIssues {
		t.Error("Expected Cleanup.DeletePlaceholderIssues to be true")
	}
	if cfg.Attachments.Concurrency != 4 {
		t.Errorf("Expected default concurrency 4, got %d", cfg.Attachments.Concurrency)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("gitlab: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GitLab: GitLabConfig{Token: "gl", Project: "group/project"},
			GitHub: GitHubConfig{Token: "gh", Repo: "owner/repo"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing project", func(c *Config) { c.GitLab.Project = "" }, true},
		{"missing gitlab token", func(c *Config) { c.GitLab.Token = "" }, true},
		{"missing github token", func(c *Config) { c.GitHub.Token = "" }, true},
		{"bad repo", func(c *Config) { c.GitHub.Repo = "ownerrepo" }, true},
		{"repo with extra slash", func(c *Config) { c.GitHub.Repo = "owner/repo/x" }, true},
		{"bad translation", func(c *Config) { c.Labels.Translations = []string{"nocolon"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMergeConfigs(t *testing.T) {
	parent := &Config{
		GitLab: GitLabConfig{URL: "https://gitlab.corp"},
		Labels: LabelsConfig{Translations: []string{"bug:type: bug"}},
		Git:    GitConfig{Skip: true},
	}
	parent.applyDefaults()

	child := &Config{
		GitLab: GitLabConfig{Project: "group/project"},
		Labels: LabelsConfig{Translations: []string{"bug:kind/bug"}},
	}

	merged := mergeConfigs(parent, child)
	if merged.GitLab.URL != "https://gitlab.corp" {
		t.Errorf("Expected parent GitLab.URL to survive, got %s", merged.GitLab.URL)
	}
	if merged.GitLab.Project != "group/project" {
		t.Errorf("Expected child project, got %s", merged.GitLab.Project)
	}
	if len(merged.Labels.Translations) != 2 || merged.Labels.Translations[0] != "bug:kind/bug" {
		t.Errorf("Expected child translations first, got %v", merged.Labels.Translations)
	}
	if merged.Git.Skip {
		t.Error("Expected child Git.Skip=false to override parent")
	}
}

func TestLoadWithInheritance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gl2gh.yaml")
	content := "extends: org/shared@main\ngitlab:\n  project: group/project\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var fetched string
	cfg, err := LoadWithInheritance(path, func(ref string) ([]byte, error) {
		fetched = ref
		return []byte("labels:\n  translations:\n    - \"p_*:priority: *\"\n"), nil
	})
	if err != nil {
		t.Fatalf("LoadWithInheritance failed: %v", err)
	}
	if fetched != "org/shared@main" {
		t.Errorf("Expected fetcher to receive 'org/shared@main', got %s", fetched)
	}
	if len(cfg.Labels.Translations) != 1 {
		t.Errorf("Expected inherited translations, got %v", cfg.Labels.Translations)
	}
	if cfg.GitLab.Project != "group/project" {
		t.Errorf("Expected child project, got %s", cfg.GitLab.Project)
	}
}

func TestLoadWithInheritance_ParentValuesSurviveDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gl2gh.yaml")
	content := "extends: org/shared@main\ngitlab:\n  project: group/project\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	parent := `gitlab:
  url: https://gitlab.corp.example/
attachments:
  concurrency: 8
  release_tag: shared-assets
`
	cfg, err := LoadWithInheritance(path, func(ref string) ([]byte, error) {
		return []byte(parent), nil
	})
	if err != nil {
		t.Fatalf("LoadWithInheritance failed: %v", err)
	}
	if cfg.GitLab.URL != "https://gitlab.corp.example" {
		t.Errorf("Expected parent gitlab url, got %s", cfg.GitLab.URL)
	}
	if cfg.Attachments.Concurrency != 8 {
		t.Errorf("Expected parent concurrency 8, got %d", cfg.Attachments.Concurrency)
	}
	if cfg.Attachments.ReleaseTag != "shared-assets" {
		t.Errorf("Expected parent release tag, got %s", cfg.Attachments.ReleaseTag)
	}
	if cfg.Attachments.ReleaseName != "GitLab issue attachments" {
		t.Errorf("Expected default release name, got %s", cfg.Attachments.ReleaseName)
	}
	if cfg.Workflow != "migrate" {
		t.Errorf("Expected default workflow, got %s", cfg.Workflow)
	}
}

func TestSplitRepo(t *testing.T) {
	owner, repo, err := SplitRepo("owner/repo")
	if err != nil || owner != "owner" || repo != "repo" {
		t.Errorf("SplitRepo(owner/repo) = %q, %q, %v", owner, repo, err)
	}
	if _, _, err := SplitRepo("/repo"); err == nil {
		t.Error("Expected error for empty owner")
	}
}

// TestParseExtendsRef verifies extends reference parsing.
func TestParseExtendsRef(t *testing.T) {
	tests := []struct {
		name        string
		ref         string
		wantOrg     string
		wantRepo    string
		wantBranch  string
		wantPath    string
		expectError bool
	}{
		{
			name:       "valid ref with default path",
			ref:        "org/repo@main",
			wantOrg:    "org",
			wantRepo:   "repo",
			wantBranch: "main",
			wantPath:   ".github/gl2gh.yaml",
		},
		{
			name:       "valid ref with custom path",
			ref:        "org/repo@main:custom/path.yaml",
			wantOrg:    "org",
			wantRepo:   "repo",
			wantBranch: "main",
			wantPath:   "custom/path.yaml",
		},
		{
			name:        "invalid ref missing branch",
			ref:         "org/repo",
			expectError: true,
		},
		{
			name:        "invalid ref missing repo",
			ref:         "org@main",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			org, repo, branch, path, err := ParseExtendsRef(tt.ref)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for ref %s, got nil", tt.ref)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if org != tt.wantOrg {
				t.Errorf("Expected org %s, got %s", tt.wantOrg, org)
			}
			if repo != tt.wantRepo {
				t.Errorf("Expected repo %s, got %s", tt.wantRepo, repo)
			}
			if branch != tt.wantBranch {
				t.Errorf("Expected branch %s, got %s", tt.wantBranch, branch)
			}
			if path != tt.wantPath {
				t.Errorf("Expected path %s, got %s", tt.wantPath, path)
			}
		})
	}
}
