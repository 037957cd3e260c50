package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeClient returns canned values for Subject tests.
type fakeClient struct {
	root   string
	branch string
	err    error
}

func (f *fakeClient) RepoRoot(string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.root, nil
}
func (f *fakeClient) CurrentBranch(string) (string, error)    { return f.branch, nil }
func (f *fakeClient) IsDirty(string) (bool, error)            { return false, nil }
func (f *fakeClient) Diff(string, bool) (string, error)       { return "", nil }
func (f *fakeClient) DiffAgainst(string, string) (string, error) { return "", nil }
func (f *fakeClient) ChangedFiles(string) ([]string, error)   { return nil, nil }
func (f *fakeClient) LastCommitHash(string) (string, error)   { return "", nil }

func TestParseStatusPorcelain(t *testing.T) {
	out := " M internal/git/git.go\n" +
		"A  cmd/diff.go\n" +
		"R  old_name.go -> new_name.go\n" +
		"?? notes.txt"

	files := ParseStatusPorcelain(out)
	assert.Equal(t, []string{
		"internal/git/git.go",
		"cmd/diff.go",
		"new_name.go",
		"notes.txt",
	}, files)
}

func TestParseStatusPorcelain_Empty(t *testing.T) {
	assert.Nil(t, ParseStatusPorcelain(""))
}

func TestSubject_RepoWithBranch(t *testing.T) {
	c := &fakeClient{root: "/home/dev/widget", branch: "feature/login"}
	assert.Equal(t, "widget@feature/login", Subject(c, "/home/dev/widget/internal"))
}

func TestSubject_DetachedHead(t *testing.T) {
	c := &fakeClient{root: "/home/dev/widget", branch: "HEAD"}
	assert.Equal(t, "widget", Subject(c, "/home/dev/widget"))
}

func TestSubject_OutsideRepo(t *testing.T) {
	c := &fakeClient{err: assert.AnError}
	assert.Equal(t, "scratch", Subject(c, "/tmp/scratch"))
}
