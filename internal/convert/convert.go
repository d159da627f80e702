// Package convert turns PDF documents into page-structured markdown using
// MuPDF page access and a multimodal OCR model.
package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/internal/segment"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/pkg/models"
)

// ProgressFunc receives the page just converted and the page total.
type ProgressFunc func(pageNum, totalPages int)

// Converter renders each PDF page to an image, pairs it with the embedded
// text layer when one exists, and asks the OCR model for clean markdown.
type Converter struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *api.Client
	logger  *slog.Logger
}

func New(cfg *config.Config, secrets *config.Secrets, client *api.Client, logger *slog.Logger) *Converter {
	return &Converter{
		cfg:     cfg,
		secrets: secrets,
		client:  client,
		logger:  logger.With("component", "convert"),
	}
}

// Convert writes the paginated markdown for pdfPath to outPath and returns
// the number of pages converted. Any page whose render or OCR call fails
// aborts the conversion; a partially converted document is never written.
func (c *Converter) Convert(ctx context.Context, pdfPath, outPath string, onPage ProgressFunc) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return 0, fmt.Errorf("pdf has no pages: %s", pdfPath)
	}

	documentID := util.DocumentKey(pdfPath)
	c.logger.Info("Converting document",
		"document", documentID,
		"pages", pageCount)

	pages := make([]models.Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("conversion interrupted at page %d: %w", i+1, err)
		}

		pageStart := time.Now()
		markdown, err := c.convertPage(ctx, doc, i)
		metrics.IncPageConverted(err)
		if err != nil {
			return 0, fmt.Errorf("failed to convert page %d: %w", i+1, err)
		}

		pages = append(pages, models.Page{
			PageNumber: i + 1,
			Text:       markdown,
			DocumentID: documentID,
		})

		c.logger.Debug("Page converted",
			"document", documentID,
			"page", i+1,
			"chars", len(markdown),
			"duration_ms", time.Since(pageStart).Milliseconds())

		if onPage != nil {
			onPage(i+1, pageCount)
		}
	}

	content := segment.Assemble(pages)
	if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
		return 0, fmt.Errorf("failed to write markdown: %w", err)
	}

	c.logger.Info("Document converted",
		"document", documentID,
		"pages", pageCount,
		"output", outPath)
	return pageCount, nil
}

// convertPage produces markdown for one zero-based page index.
func (c *Converter) convertPage(ctx context.Context, doc *fitz.Document, idx int) (string, error) {
	text, err := doc.Text(idx)
	if err != nil {
		// A broken text layer is recoverable, the image alone still works.
		c.logger.Warn("Failed to extract text layer, transcribing from image",
			"page", idx+1, "error", err)
		text = ""
	}

	img, err := doc.Image(idx)
	if err != nil {
		return "", fmt.Errorf("failed to render page image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}
	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	prompt, err := c.ocrPrompt(text)
	if err != nil {
		return "", fmt.Errorf("failed to render ocr template: %w", err)
	}

	modelCfg := c.cfg.OCRModel()
	resp, err := c.client.ChatCompletion(ctx, modelCfg, c.secrets.GetAPIKey(modelCfg.BaseURL), []api.Message{
		api.MultimodalMessage("user", api.TextPart(prompt), api.ImagePart(imageURL)),
	})
	if err != nil {
		return "", fmt.Errorf("ocr call failed: %w", err)
	}

	markdown := strings.TrimSpace(util.StripThinkTags(resp.FirstContent()))
	if markdown == "" {
		return "", fmt.Errorf("ocr returned empty content")
	}
	return markdown, nil
}

// ocrPrompt picks the correction prompt when the page has a usable text
// layer and the pure transcription prompt otherwise.
func (c *Converter) ocrPrompt(text string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return util.RenderTemplate(c.cfg.PromptTemplates.OCRCorrection, map[string]interface{}{
			"ExtractedText": text,
		})
	}
	return util.RenderTemplate(c.cfg.PromptTemplates.OCRTranscription, map[string]interface{}{})
}
