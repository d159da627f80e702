package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lamim/corpusforge/internal/config"
)

func testDataConfig(root string) config.DataConfig {
	return config.DataConfig{
		InputDir:     filepath.Join(root, "input"),
		ProcessedDir: filepath.Join(root, "processed"),
		OutputDir:    filepath.Join(root, "output"),
		ProgressDir:  filepath.Join(root, "progress"),
		LogDir:       filepath.Join(root, "logs"),
	}
}

func TestNewLayoutCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(testDataConfig(root))
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}

	for _, dir := range []string{"input", "processed", "output", "progress", "logs"} {
		if info, err := os.Stat(filepath.Join(root, dir)); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}

	if got, want := layout.MarkdownPath("manual"), filepath.Join(root, "processed", "manual.md"); got != want {
		t.Errorf("MarkdownPath = %s, want %s", got, want)
	}
	if got, want := layout.OutputPath("manual"), filepath.Join(root, "output", "manual.jsonl"); got != want {
		t.Errorf("OutputPath = %s, want %s", got, want)
	}
}

func TestDiscoverDirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	files := map[string]string{
		"b_manual.pdf":        root,
		"a_spec.PDF":          root,
		"sheet.xlsx":          root,
		"notes.txt":           root,
		"deep.pdf":            sub,
		"legacy_contract.docx": sub,
	}
	for name, dir := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	docs, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(docs) != 5 {
		t.Fatalf("got %d documents, want 5 (txt ignored): %+v", len(docs), docs)
	}

	// Sorted by path, with convertibility by extension.
	for i := 1; i < len(docs); i++ {
		if docs[i-1].Path > docs[i].Path {
			t.Errorf("documents not sorted: %s before %s", docs[i-1].Path, docs[i].Path)
		}
	}
	for _, doc := range docs {
		ext := filepath.Ext(doc.Path)
		wantConvertible := ext == ".pdf" || ext == ".PDF"
		if doc.Convertible != wantConvertible {
			t.Errorf("%s Convertible = %v, want %v", doc.Path, doc.Convertible, wantConvertible)
		}
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	root := t.TempDir()
	pdf := filepath.Join(root, "manual.pdf")
	if err := os.WriteFile(pdf, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	docs, err := Discover(pdf)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(docs) != 1 || !docs[0].Convertible {
		t.Errorf("docs = %+v, want one convertible entry", docs)
	}
}

func TestDiscoverUnsupportedSingleFile(t *testing.T) {
	root := t.TempDir()
	txt := filepath.Join(root, "readme.txt")
	if err := os.WriteFile(txt, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	docs, err := Discover(txt)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %+v, want none for unsupported extension", docs)
	}
}

func TestDiscoverMissingPath(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Discover of a missing path should fail")
	}
}
