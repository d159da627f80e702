package writer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lamim/corpusforge/internal/config"
)

// Layout owns the on-disk data directory structure: input/ holds source
// documents, processed/ the paginated markdown, output/ the datasets,
// progress/ the checkpoints, logs/ the run logs.
type Layout struct {
	data config.DataConfig
}

// NewLayout creates the directory structure if any of it is missing.
func NewLayout(data config.DataConfig) (*Layout, error) {
	for _, dir := range []string{data.InputDir, data.ProcessedDir, data.OutputDir, data.ProgressDir, data.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Layout{data: data}, nil
}

func (l *Layout) InputDir() string {
	return l.data.InputDir
}

// MarkdownPath is where a document's converted markdown lives.
func (l *Layout) MarkdownPath(documentKey string) string {
	return filepath.Join(l.data.ProcessedDir, documentKey+".md")
}

// OutputPath is where a document's final dataset lives.
func (l *Layout) OutputPath(documentKey string) string {
	return filepath.Join(l.data.OutputDir, documentKey+".jsonl")
}

func (l *Layout) ProgressDir() string {
	return l.data.ProgressDir
}

func (l *Layout) LogDir() string {
	return l.data.LogDir
}

// InputDocument is one discovered source file. Convertible is false for
// formats the scanner recognizes but the converter does not handle yet
// (docx, xlsx); those surface as per-document failures instead of being
// silently ignored.
type InputDocument struct {
	Path        string
	Convertible bool
}

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": false,
	".xlsx": false,
}

// Discover returns the source documents at path, which may be a single file
// or a directory scanned recursively. Results are sorted by path for a
// consistent processing order; unrecognized extensions are ignored.
func Discover(path string) ([]InputDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}

	if !info.IsDir() {
		ext := strings.ToLower(filepath.Ext(path))
		convertible, ok := supportedExtensions[ext]
		if !ok {
			return nil, nil
		}
		return []InputDocument{{Path: path, Convertible: convertible}}, nil
	}

	var docs []InputDocument
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if convertible, ok := supportedExtensions[ext]; ok {
			docs = append(docs, InputDocument{Path: p, Convertible: convertible})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}
