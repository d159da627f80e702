// Package segment splits converted document markdown into per-page units.
package segment

import (
	"strconv"
	"strings"

	"github.com/lamim/corpusforge/pkg/models"
)

// PageMarker is the delimiter that begins each page block in converted
// markdown. The marker is followed by the page number on the same line and
// the page body on the lines after it.
const PageMarker = "## Page "

// Split segments converted markdown into its pages. Content before the first
// marker (title banners, conversion preamble) is not a page and is discarded.
// A segment whose header line is missing or does not parse as an integer is
// skipped silently; the returned sequence contains only usable pages, in
// source order. Split is pure: calling it again on the same content yields
// the same sequence, which resumption depends on.
func Split(content, documentID string) []models.Page {
	segments := strings.Split(content, PageMarker)
	if len(segments) < 2 {
		return nil
	}

	pages := make([]models.Page, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		parts := strings.SplitN(strings.TrimSpace(seg), "\n", 2)
		if len(parts) < 2 {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		pages = append(pages, models.Page{
			PageNumber: num,
			Text:       strings.TrimSpace(parts[1]),
			DocumentID: documentID,
		})
	}
	return pages
}

// Assemble renders pages back into marker-delimited markdown, the inverse of
// Split for well-formed input. The converter uses it to write processed
// content to disk.
func Assemble(pages []models.Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(PageMarker)
		b.WriteString(strconv.Itoa(p.PageNumber))
		b.WriteString("\n\n")
		b.WriteString(p.Text)
		b.WriteString("\n")
	}
	return b.String()
}
