package models

import "time"

// GenerationState is the resumable cursor through the (page x difficulty)
// iteration space for one document, persisted after every completed unit of
// work. NextPageIndex/NextDifficultyLevel always describe the next unit to
// run, not the one just finished, so a resume never repeats completed work.
type GenerationState struct {
	DocumentKey         string    `json:"document_key"`
	SourceContentPath   string    `json:"source_content_path"`
	MaxDifficultyLevel  int       `json:"max_difficulty_level"`
	NextPageIndex       int       `json:"next_page_index"`
	NextDifficultyLevel int       `json:"next_difficulty_level"`
	TotalPages          int       `json:"total_pages"`
	AccumulatedPairs    []QAPair  `json:"accumulated_pairs"`
	SeenQuestions       []string  `json:"seen_questions"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CompletedUnits counts the (page, difficulty) units already finished
// according to the cursor position.
func (s *GenerationState) CompletedUnits() int {
	if s.MaxDifficultyLevel <= 0 {
		return 0
	}
	return (s.NextPageIndex-1)*s.MaxDifficultyLevel + (s.NextDifficultyLevel - 1)
}

// Progress returns completion as a percentage of all units for the document.
func (s *GenerationState) Progress() float64 {
	total := s.TotalPages * s.MaxDifficultyLevel
	if total <= 0 {
		return 0
	}
	pct := float64(s.CompletedUnits()) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
