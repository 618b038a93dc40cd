// Package config handles loading and merging gl2gh run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Extends allows inheriting from a shared config (e.g., "org/repo@branch").
	Extends string `yaml:"extends,omitempty"`

	// GitLab configures the source project.
	GitLab GitLabConfig `yaml:"gitlab"`

	// GitHub configures the target repository.
	GitHub GitHubConfig `yaml:"github"`

	// Workflow is a preset workflow name (e.g., "migrate").
	Workflow string `yaml:"workflow,omitempty"`

	// Steps is a custom list of phases (overrides workflow).
	Steps []string `yaml:"steps,omitempty"`

	Labels      LabelsConfig      `yaml:"labels"`
	Git         GitConfig         `yaml:"git"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Report      ReportConfig      `yaml:"report"`
}

// GitLabConfig holds source connection settings.
type GitLabConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Project string `yaml:"project"` // group/project
}

// GitHubConfig holds target connection settings.
type GitHubConfig struct {
	APIURL string `yaml:"api_url,omitempty"`
	Token  string `yaml:"token"`
	Repo   string `yaml:"repo"` // owner/repo
}

// LabelsConfig holds label translation patterns ("source:target", '*' globs).
type LabelsConfig struct {
	Translations []string `yaml:"translations,omitempty"`
}

// GitConfig controls history mirroring.
type GitConfig struct {
	Skip       bool   `yaml:"skip"`
	LocalClone string `yaml:"local_clone,omitempty"`
}

// AttachmentsConfig controls attachment relocation.
type AttachmentsConfig struct {
	Concurrency int    `yaml:"concurrency"`
	ReleaseTag  string `yaml:"release_tag"`
	ReleaseName string `yaml:"release_name"`
}

// CleanupConfig controls what happens to placeholders after migration.
type CleanupConfig struct {
	DeletePlaceholderIssues   bool `yaml:"delete_placeholder_issues"`
	KeepPlaceholderMilestones bool `yaml:"keep_placeholder_milestones"`
}

// ReportConfig controls the end-of-run report.
type ReportConfig struct {
	Output string `yaml:"output,omitempty"`
}

// Load reads a config file from the given path and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := parseRaw(data)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// parseRaw expands environment variables and decodes YAML without applying defaults.
func parseRaw(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// LoadWithInheritance loads a config and resolves the 'extends' chain.
// The fetcher function is used to retrieve remote configs.
// Defaults are applied once, after merging, so they never mask parent values.
func LoadWithInheritance(path string, fetcher func(ref string) ([]byte, error)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := parseRaw(data)
	if err != nil {
		return nil, err
	}

	if cfg.Extends == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	parentData, err := fetcher(cfg.Extends)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parent config '%s': %w", cfg.Extends, err)
	}

	parentCfg, err := parseRaw(parentData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse parent config: %w", err)
	}

	// Merge: child overrides parent
	merged := mergeConfigs(parentCfg, cfg)
	merged.applyDefaults()

	return merged, nil
}

// Default returns a config with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// FindConfigPath searches for a config file in standard locations.
func FindConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	candidates := []string{
		".gl2gh.yaml",
		".gl2gh.yml",
		".github/gl2gh.yaml",
		".github/gl2gh.yml",
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			abs, _ := filepath.Abs(c)
			return abs
		}
	}

	return ""
}

// applyDefaults sets default values for unset fields.
func (c *Config) applyDefaults() {
	if c.GitLab.URL == "" {
		c.GitLab.URL = "https://gitlab.com"
	}
	c.GitLab.URL = strings.TrimSuffix(c.GitLab.URL, "/")
	if c.Workflow == "" && len(c.Steps) == 0 {
		c.Workflow = "migrate"
	}
	if c.Attachments.Concurrency <= 0 {
		c.Attachments.Concurrency = 4
	}
	if c.Attachments.ReleaseTag == "" {
		c.Attachments.ReleaseTag = "gitlab-issue-attachments"
	}
	if c.Attachments.ReleaseName == "" {
		c.Attachments.ReleaseName = "GitLab issue attachments"
	}
}

// Validate checks that everything needed for a run is present.
func (c *Config) Validate() error {
	if c.GitLab.Project == "" {
		return fmt.Errorf("gitlab project is required")
	}
	if c.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required (set GITLAB_TOKEN or gitlab.token)")
	}
	if _, _, err := SplitRepo(c.GitHub.Repo); err != nil {
		return err
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required (set GITHUB_TOKEN or github.token)")
	}
	for _, p := range c.Labels.Translations {
		if !strings.Contains(p, ":") {
			return fmt.Errorf("invalid label translation %q: expected source:target", p)
		}
	}
	return nil
}

// SplitRepo parses "owner/repo".
func SplitRepo(full string) (owner, repo string, err error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid github repository %q: expected owner/repo", full)
	}
	return parts[0], parts[1], nil
}

// mergeConfigs merges a child config onto a parent config.
// Non-zero values in child override parent.
func mergeConfigs(parent, child *Config) *Config {
	result := *parent

	if child.Workflow != "" {
		result.Workflow = child.Workflow
	}
	if len(child.Steps) > 0 {
		result.Steps = child.Steps
	}

	if child.GitLab.URL != "" {
		result.GitLab.URL = child.GitLab.URL
	}
	if child.GitLab.Token != "" {
		result.GitLab.Token = child.GitLab.Token
	}
	if child.GitLab.Project != "" {
		result.GitLab.Project = child.GitLab.Project
	}

	if child.GitHub.APIURL != "" {
		result.GitHub.APIURL = child.GitHub.APIURL
	}
	if child.GitHub.Token != "" {
		result.GitHub.Token = child.GitHub.Token
	}
	if child.GitHub.Repo != "" {
		result.GitHub.Repo = child.GitHub.Repo
	}

	// Label translations accumulate; child patterns are tried before parent patterns.
	if len(child.Labels.Translations) > 0 {
		result.Labels.Translations = append(append([]string(nil), child.Labels.Translations...), parent.Labels.Translations...)
	}

	// Booleans: always take the child value so it can override parent true -> false and vice versa
	result.Git.Skip = child.Git.Skip
	if child.Git.LocalClone != "" {
		result.Git.LocalClone = child.Git.LocalClone
	}

	if child.Attachments.Concurrency != 0 {
		result.Attachments.Concurrency = child.Attachments.Concurrency
	}
	if child.Attachments.ReleaseTag != "" {
		result.Attachments.ReleaseTag = child.Attachments.ReleaseTag
	}
	if child.Attachments.ReleaseName != "" {
		result.Attachments.ReleaseName = child.Attachments.ReleaseName
	}

	result.Cleanup = child.Cleanup

	if child.Report.Output != "" {
		result.Report.Output = child.Report.Output
	}

	return &result
}

// ParseExtendsRef parses "org/repo@branch" into components.
func ParseExtendsRef(ref string) (org, repo, branch, path string, err error) {
	// Format: org/repo@branch or org/repo@branch:path
	parts := strings.SplitN(ref, "@", 2)
	if len(parts) != 2 {
		return "", "", "", "", fmt.Errorf("invalid extends reference: %s (expected org/repo@branch)", ref)
	}

	orgRepo := strings.SplitN(parts[0], "/", 2)
	if len(orgRepo) != 2 {
		return "", "", "", "", fmt.Errorf("invalid extends reference: %s (expected org/repo)", ref)
	}

	org = orgRepo[0]
	repo = orgRepo[1]

	branchPath := strings.SplitN(parts[1], ":", 2)
	branch = branchPath[0]
	if len(branchPath) == 2 {
		path = branchPath[1]
	} else {
		path = ".github/gl2gh.yaml"
	}

	return org, repo, branch, path, nil
}
