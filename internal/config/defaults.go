package config

// GetDefaultQATemplate returns the default template for question-answer
// generation. The avoid-list instruction is appended programmatically by the
// generator, not rendered through the template.
func GetDefaultQATemplate() string {
	return `You are an expert at creating high-quality training data from technical documentation. Generate between {{.MinPairs}} and {{.MaxPairs}} question-answer pairs from the page content below.

Target difficulty: level {{.DifficultyLevel}} of {{.MaxDifficultyLevel}}. {{.Guideline}}

Requirements for each pair:
- The question must be answerable from the page content alone
- The answer must be complete, accurate, and self-contained
- The context must quote the specific passage the answer is drawn from
- Do not invent facts that are not present on the page

PAGE CONTENT:
{{.Content}}

Return ONLY a valid JSON array of objects (no markdown, no additional text):
[{"question": "...", "answer": "...", "context": "..."}, ...]`
}

// GetDefaultOCRCorrectionTemplate returns the template used when a page has
// an embedded text layer to correct against the rendered image.
func GetDefaultOCRCorrectionTemplate() string {
	return `The text below was extracted from a PDF page and may contain extraction artifacts (broken lines, merged columns, garbled symbols, lost table structure). Using the attached page image as the source of truth, produce a corrected markdown version of the page.

- Preserve headings, lists, and table structure in markdown
- Fix characters and words the extraction mangled
- Omit page headers, footers, and page numbers
- Output the corrected markdown only, no commentary

EXTRACTED TEXT:
{{.ExtractedText}}`
}

// GetDefaultOCRTranscriptionTemplate returns the template used when a page
// has no usable text layer and must be transcribed from the image alone.
func GetDefaultOCRTranscriptionTemplate() string {
	return `Transcribe the attached page image into clean markdown.

- Preserve headings, lists, and table structure in markdown
- Transcribe formulas in a readable plain-text form
- Omit page headers, footers, and page numbers
- Output the markdown only, no commentary`
}

// GetDefaultJudgeLeakTemplate returns the template for the answer-leak
// quality check.
func GetDefaultJudgeLeakTemplate() string {
	return `You are reviewing question-answer pairs for a training dataset. A pair is defective when the question already contains or directly reveals its own answer, making it useless for training.

QUESTION:
{{.Question}}

ANSWER:
{{.Answer}}

Does the question reveal its own answer? Respond with exactly one word: LEAK if it does, OK if it does not.`
}
