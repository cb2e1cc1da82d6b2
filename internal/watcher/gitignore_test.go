package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGitignoreRules(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "work", "server")
	ignore, err := ParseGitignore(root, strings.NewReader(strings.Join([]string{
		"# build output",
		"/target",
		"node_modules/",
		"*.log",
		"!keep.log",
		"docs/**/*.pdf",
		`\#literal`,
		"",
	}, "\n")))
	if err != nil {
		t.Fatalf("parse gitignore: %v", err)
	}

	cases := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{rel: "target/debug/.fingerprint/foo.rs", want: true},
		{rel: "crates/target/x", want: false},
		{rel: "web/node_modules/react/index.js", want: true},
		{rel: "node_modules", isDir: false, want: false},
		{rel: "app.log", want: true},
		{rel: "logs/keep.log", want: false},
		{rel: "docs/a/b/manual.pdf", want: true},
		{rel: "manual.pdf", want: false},
		{rel: "#literal", want: true},
		{rel: "src/main.rs", want: false},
	}
	for _, testCase := range cases {
		path := filepath.Join(root, filepath.FromSlash(testCase.rel))
		if got := ignore.Ignored(path, testCase.isDir); got != testCase.want {
			t.Fatalf("Ignored(%q) = %v, want %v", testCase.rel, got, testCase.want)
		}
	}
}

func TestGitignoreIgnoresNothingOutsideRoot(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "work", "server")
	ignore, err := ParseGitignore(root, strings.NewReader("*\n"))
	if err != nil {
		t.Fatalf("parse gitignore: %v", err)
	}
	if ignore.Ignored(filepath.Join(string(os.PathSeparator), "work", "other", "x"), false) {
		t.Fatalf("expected paths outside the root to pass")
	}
	if ignore.Ignored(root, true) {
		t.Fatalf("expected the root itself to pass")
	}
}

func TestFindProjectGitignoreWalksUp(t *testing.T) {
	project := t.TempDir()
	if err := os.Mkdir(filepath.Join(project, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.WriteFile(filepath.Join(project, ".gitignore"), []byte("dist/\n"), 0o644); err != nil {
		t.Fatalf("write gitignore: %v", err)
	}
	nested := filepath.Join(project, "cmd", "app")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	ignore, err := FindProjectGitignore(nested)
	if err != nil {
		t.Fatalf("find gitignore: %v", err)
	}
	if ignore == nil {
		t.Fatalf("expected gitignore to be found")
	}
	if ignore.Root() != project {
		t.Fatalf("expected root %q, got %q", project, ignore.Root())
	}
	if !ignore.Ignored(filepath.Join(project, "dist", "bundle.js"), false) {
		t.Fatalf("expected dist to be ignored")
	}
}

func TestFindProjectGitignoreStopsAtRepositoryRoot(t *testing.T) {
	outer := t.TempDir()
	if err := os.WriteFile(filepath.Join(outer, ".gitignore"), []byte("*\n"), 0o644); err != nil {
		t.Fatalf("write gitignore: %v", err)
	}
	repo := filepath.Join(outer, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}

	ignore, err := FindProjectGitignore(repo)
	if err != nil {
		t.Fatalf("find gitignore: %v", err)
	}
	if ignore != nil {
		t.Fatalf("expected search to stop at the repository root, found %q", ignore.Root())
	}
}
