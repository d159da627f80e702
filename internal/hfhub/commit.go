package hfhub

import (
	"encoding/base64"
	"fmt"
	"os"
)

// CommitOperation is one file addition in a Hub commit, content embedded as
// base64.
type CommitOperation struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// MaxInlineSize caps how large a file may be committed inline. Above this
// the Hub expects the LFS protocol, which this uploader deliberately does
// not speak; QA datasets come nowhere near it.
const MaxInlineSize = 10 * 1024 * 1024

// PrepareFileOperation reads a local file into an inline commit operation.
func PrepareFileOperation(localPath, pathInRepo string) (*CommitOperation, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxInlineSize {
		return nil, fmt.Errorf("%s is %d bytes, above the %d byte inline commit limit", localPath, info.Size(), MaxInlineSize)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}

	return &CommitOperation{
		Path:     pathInRepo,
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	}, nil
}

// TextOperation builds an inline commit operation from literal text content.
func TextOperation(pathInRepo, content string) CommitOperation {
	return CommitOperation{
		Path:     pathInRepo,
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		Encoding: "base64",
	}
}
