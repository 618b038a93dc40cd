package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/similigh/gl2gh/internal/core/config"
	"github.com/similigh/gl2gh/internal/integrations/github"
)

// loadConfig reads the config file (following 'extends') or falls back to defaults.
func loadConfig(ctx context.Context) (*config.Config, string, error) {
	path := config.FindConfigPath(cfgFile)
	if cfgFile != "" && path == "" {
		return nil, "", fmt.Errorf("config file %s not found", cfgFile)
	}
	if path == "" {
		return config.Default(), "", nil
	}

	fetcher := func(ref string) ([]byte, error) {
		org, repo, branch, file, err := config.ParseExtendsRef(ref)
		if err != nil {
			return nil, err
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("GITHUB_TOKEN required to fetch remote config %s", ref)
		}
		client, err := github.NewClient(ctx, github.Options{Repo: org + "/" + repo, Token: token})
		if err != nil {
			return nil, err
		}
		return client.GetFileContent(ctx, org, repo, file, branch)
	}

	cfg, err := config.LoadWithInheritance(path, fetcher)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// tokenSources are the places a token can come from, in order of preference.
type tokenSources struct {
	gitlabPassPath string
	githubPassPath string
}

// resolveTokens fills in the tokens from pass, the environment, the config
// file and finally the gh CLI's stored credentials.
func resolveTokens(cfg *config.Config, src tokenSources, pass func(path string) (string, error)) error {
	var gitlabPass, githubPass string
	var err error
	if src.gitlabPassPath != "" {
		if gitlabPass, err = pass(src.gitlabPassPath); err != nil {
			return fmt.Errorf("failed to read gitlab token from pass: %w", err)
		}
	}
	if src.githubPassPath != "" {
		if githubPass, err = pass(src.githubPassPath); err != nil {
			return fmt.Errorf("failed to read github token from pass: %w", err)
		}
	}

	cfg.GitLab.Token = firstNonEmpty(gitlabPass, os.Getenv("GITLAB_TOKEN"), cfg.GitLab.Token)
	cfg.GitHub.Token = github.ResolveToken(githubHost(cfg.GitHub.APIURL),
		githubPass, os.Getenv("TARGET_GITHUB_TOKEN"), os.Getenv("GITHUB_TOKEN"), cfg.GitHub.Token)
	return nil
}

// passValue reads the first line of a pass(1) entry.
func passValue(path string) (string, error) {
	out, err := exec.Command("pass", "show", path).Output()
	if err != nil {
		return "", fmt.Errorf("pass show %s: %w", path, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("pass entry %s is empty", path)
	}
	return line, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// githubHost returns the host name for an API URL; empty means github.com.
func githubHost(apiURL string) string {
	if apiURL == "" {
		return "github.com"
	}
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "github.com"
	}
	return strings.TrimPrefix(u.Host, "api.")
}

// githubWebURL returns the web root matching an API URL, used for clone URLs.
func githubWebURL(apiURL string) string {
	if apiURL == "" {
		return "https://github.com"
	}
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "https://github.com"
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimPrefix(u.Host, "api.")
}
