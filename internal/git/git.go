// Package git shells out to the git CLI to collect the material for a
// diff review: the working-tree or staged diff plus enough repository
// context to label the consultation.
package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client defines the git operations a diff review needs. All methods take
// a path parameter so reviews can target any checkout.
type Client interface {
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	IsDirty(path string) (bool, error)
	Diff(path string, staged bool) (string, error)
	DiffAgainst(path, ref string) (string, error)
	ChangedFiles(path string) ([]string, error)
	LastCommitHash(path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) IsDirty(path string) (bool, error) {
	out, err := gitCmd(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Diff returns the unstaged working-tree diff, or the staged diff when
// staged is true.
func (c *RealClient) Diff(path string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	return gitCmd(path, args...)
}

// DiffAgainst returns the diff between ref and the working tree.
func (c *RealClient) DiffAgainst(path, ref string) (string, error) {
	return gitCmd(path, "diff", ref)
}

// ChangedFiles returns paths with uncommitted changes, relative to the
// repository root.
func (c *RealClient) ChangedFiles(path string) ([]string, error) {
	out, err := gitCmd(path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseStatusPorcelain(out), nil
}

// ParseStatusPorcelain extracts file paths from `git status --porcelain`
// output, taking the rename target for renamed entries.
func ParseStatusPorcelain(out string) []string {
	if out == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		name := strings.TrimSpace(line[3:])
		if idx := strings.Index(name, " -> "); idx >= 0 {
			name = name[idx+4:]
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}

func (c *RealClient) LastCommitHash(path string) (string, error) {
	return gitCmd(path, "log", "-1", "--format=%h")
}

// Subject derives a stable review-subject label from the repo root and
// branch, falling back to the directory name outside a repository.
func Subject(c Client, path string) string {
	root, err := c.RepoRoot(path)
	if err != nil {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return path
		}
		return filepath.Base(abs)
	}
	subject := filepath.Base(root)
	if branch, err := c.CurrentBranch(path); err == nil && branch != "" && branch != "HEAD" {
		subject += "@" + branch
	}
	return subject
}
