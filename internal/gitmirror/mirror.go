// Package gitmirror copies every branch and tag of the source repository to
// the target with the git CLI.
package gitmirror

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

const redacted = "***TOKEN***"

// Options configures a Mirrorer.
type Options struct {
	SourceToken string

	// TargetURL is the HTTPS clone URL of the target repository.
	TargetURL   string
	TargetToken string

	// LocalClone is an existing checkout to mirror from instead of the source URL.
	LocalClone string

	Logger *zap.Logger
}

// Mirrorer pushes a mirror clone of the source to the target.
type Mirrorer struct {
	opts   Options
	logger *zap.Logger
}

// New returns a Mirrorer for opts.
func New(opts Options) *Mirrorer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirrorer{opts: opts, logger: logger}
}

// Mirror clones sourceURL with --mirror into a temporary directory and
// pushes everything to the target. The temporary clone is always removed.
func (m *Mirrorer) Mirror(ctx context.Context, sourceURL string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git executable not found: %w", err)
	}

	dir, err := os.MkdirTemp("", "gl2gh-mirror-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	source := injectToken(sourceURL, m.opts.SourceToken, "oauth2:")
	if m.opts.LocalClone != "" {
		source = m.opts.LocalClone
	}
	m.logger.Info("cloning source repository", zap.String("source", sanitize(source, m.tokens())))
	if err := m.git(ctx, "", "clone", "--mirror", source, dir); err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	target := injectToken(m.opts.TargetURL, m.opts.TargetToken, "")
	if err := m.git(ctx, dir, "remote", "add", "github", target); err != nil {
		return fmt.Errorf("failed to add remote: %w", err)
	}

	m.logger.Info("pushing mirror", zap.String("target", m.opts.TargetURL))
	if err := m.git(ctx, dir, "push", "--mirror", "github"); err != nil {
		return fmt.Errorf("failed to push mirror: %w", err)
	}
	return nil
}

func (m *Mirrorer) tokens() []string {
	return []string{m.opts.SourceToken, m.opts.TargetToken}
}

// git runs one git command and returns its output as the error on failure,
// with tokens removed.
func (m *Mirrorer) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("git %s: %s", args[0], sanitize(msg, m.tokens()))
	}
	m.logger.Debug("git", zap.String("command", args[0]), zap.String("output", sanitize(strings.TrimSpace(string(out)), m.tokens())))
	return nil
}

// injectToken adds credentials to an HTTPS URL. Other URLs are returned unchanged.
func injectToken(rawURL, token, prefix string) string {
	if token == "" || !strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return "https://" + prefix + url.PathEscape(token) + "@" + strings.TrimPrefix(rawURL, "https://")
}

// sanitize removes every non-empty token from s.
func sanitize(s string, tokens []string) string {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		s = strings.ReplaceAll(s, t, redacted)
		if escaped := url.PathEscape(t); escaped != t {
			s = strings.ReplaceAll(s, escaped, redacted)
		}
	}
	return s
}

// CloneURL builds the HTTPS clone URL of a project on a web host.
func CloneURL(host, path string) string {
	return strings.TrimSuffix(host, "/") + "/" + strings.Trim(path, "/") + ".git"
}
