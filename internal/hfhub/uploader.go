// Package hfhub uploads finished JSONL datasets to the Hugging Face Hub
// through its commit API. Files are committed inline as base64; page-level
// QA datasets stay far below the sizes that would need LFS.
package hfhub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	hubBase = "https://huggingface.co"

	// DefaultTimeout bounds every Hub API call.
	DefaultTimeout = 300 * time.Second

	// LogPreviewLength is the maximum length for payload previews in logs.
	LogPreviewLength = 500
)

// UploadFile maps a local file to its path inside the dataset repo.
type UploadFile struct {
	LocalPath  string
	PathInRepo string
}

// Uploader pushes dataset files to a Hugging Face dataset repository.
type Uploader struct {
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewUploader creates a Hub uploader authenticated with token.
func NewUploader(token string, logger *slog.Logger) *Uploader {
	return &Uploader{
		token: token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.With("component", "hf_uploader"),
	}
}

// Upload creates the dataset repository if needed and commits the dataset
// card plus every file in a single commit to main.
func (u *Uploader) Upload(repoID, card string, files []UploadFile) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to upload")
	}

	u.logger.Info("Starting upload to Hugging Face Hub",
		"repo_id", repoID, "files", len(files))

	if err := u.createRepo(repoID); err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}

	operations := []CommitOperation{
		// Keeps the Hub from routing .jsonl into LFS, which breaks the
		// dataset viewer's newline rendering.
		TextOperation(".gitattributes", "*.jsonl text\n"),
		TextOperation("README.md", card),
	}
	for _, f := range files {
		op, err := PrepareFileOperation(f.LocalPath, f.PathInRepo)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", f.LocalPath, err)
		}
		operations = append(operations, *op)
	}

	message := fmt.Sprintf("Upload QA dataset (%d file(s))", len(files))
	if err := u.createCommit(repoID, "main", operations, message); err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}

	u.logger.Info("Upload completed successfully",
		"repo_id", repoID,
		"url", fmt.Sprintf("%s/datasets/%s", hubBase, repoID))
	return nil
}

func (u *Uploader) createRepo(repoID string) error {
	// An existing repo answers the metadata endpoint with 200.
	checkURL := fmt.Sprintf("%s/api/datasets/%s", hubBase, repoID)
	req, err := http.NewRequest("GET", checkURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.httpClient.Do(req)
	if err == nil && resp.StatusCode == http.StatusOK {
		_ = resp.Body.Close()
		u.logger.Info("Repository already exists", "repo_id", repoID)
		return nil
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	parts := strings.Split(repoID, "/")
	if len(parts) != 2 {
		return fmt.Errorf("invalid repo_id format, expected 'username/reponame', got '%s'", repoID)
	}

	payload := map[string]interface{}{
		"name":    parts[1],
		"type":    "dataset",
		"private": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	createURL := hubBase + "/api/repos/create"
	req, err = http.NewRequest("POST", createURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	u.logger.Debug("Creating repository", "url", createURL, "name", parts[1])

	resp, err = u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			u.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create repo failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	u.logger.Info("Repository created", "repo_id", repoID)
	return nil
}

// createCommit posts the NDJSON commit payload: a header line followed by
// one file line per operation, every file embedded as base64.
func (u *Uploader) createCommit(repoID, branch string, operations []CommitOperation, message string) error {
	url := fmt.Sprintf("%s/api/datasets/%s/commit/%s", hubBase, repoID, branch)

	var ndjsonLines []string

	header := map[string]interface{}{
		"key": "header",
		"value": map[string]string{
			"summary":     message,
			"description": "",
		},
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	ndjsonLines = append(ndjsonLines, string(headerJSON))

	for _, op := range operations {
		fileLine := map[string]interface{}{
			"key": "file",
			"value": map[string]interface{}{
				"content":  op.Content,
				"path":     op.Path,
				"encoding": op.Encoding,
			},
		}
		fileJSON, err := json.Marshal(fileLine)
		if err != nil {
			return fmt.Errorf("failed to marshal file %s: %w", op.Path, err)
		}
		ndjsonLines = append(ndjsonLines, string(fileJSON))
	}

	ndjsonPayload := strings.Join(ndjsonLines, "\n")

	if len(ndjsonPayload) > LogPreviewLength {
		u.logger.Debug("Commit payload (NDJSON)", "preview", ndjsonPayload[:LogPreviewLength]+"...")
	} else {
		u.logger.Debug("Commit payload (NDJSON)", "preview", ndjsonPayload)
	}

	req, err := http.NewRequest("POST", url, strings.NewReader(ndjsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	u.logger.Debug("Creating commit", "url", url, "operations", len(operations))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			u.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("commit failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	u.logger.Debug("Commit response", "status", resp.StatusCode, "body", string(bodyBytes))
	u.logger.Info("Commit created successfully", "branch", branch, "operations", len(operations))
	return nil
}
