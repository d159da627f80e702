package models

import (
	"strings"
	"time"
)

// Page is one segmented unit of converted document content.
// Immutable once produced by the segmenter.
type Page struct {
	PageNumber int    `json:"page_number"` // number parsed from the page header, 1-based
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

// QAPair is one generated question-answer artifact. Pairs are never mutated
// after creation; deduplication only removes entries.
type QAPair struct {
	Question        string `json:"question"`
	Answer          string `json:"answer"`
	Context         string `json:"context"`
	DifficultyLevel int    `json:"difficulty_level"`
	DocumentID      string `json:"document_id"`
	PageNumber      int    `json:"page_number"`
}

// TrainingRecord is the exported dataset row: exactly the three fields the
// training artifact carries, with all bookkeeping stripped.
type TrainingRecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context"`
}

// TrainingRecord strips a pair down to its exportable fields.
func (p QAPair) TrainingRecord() TrainingRecord {
	return TrainingRecord{Question: p.Question, Answer: p.Answer, Context: p.Context}
}

// CandidatePair is the boundary record decoded from the generation model's
// JSON output. All fields are optional at the wire level; incomplete
// candidates are filtered by the caller, never treated as a decode error.
type CandidatePair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context"`
}

// Complete reports whether the candidate carries all three required fields,
// ignoring whitespace-only values.
func (c CandidatePair) Complete() bool {
	return strings.TrimSpace(c.Question) != "" &&
		strings.TrimSpace(c.Answer) != "" &&
		strings.TrimSpace(c.Context) != ""
}

// DocumentResult is the explicit per-document outcome collected by the batch
// loop. Success iff Err is nil.
type DocumentResult struct {
	Document   string
	PairCount  int
	OutputPath string
	Err        error
	Duration   time.Duration
}

// Failed reports whether the document run ended in an error.
func (r DocumentResult) Failed() bool {
	return r.Err != nil
}

// BatchSummary aggregates outcomes across a sequential batch run.
type BatchSummary struct {
	Documents  int
	Succeeded  int
	Failed     int
	TotalPairs int
	Duration   time.Duration
}

// Add folds one document result into the summary.
func (s *BatchSummary) Add(r DocumentResult) {
	s.Documents++
	if r.Failed() {
		s.Failed++
		return
	}
	s.Succeeded++
	s.TotalPairs += r.PairCount
}
