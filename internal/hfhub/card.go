package hfhub

import (
	"fmt"
	"strings"
)

// CardEntry describes one uploaded dataset file for the README card.
type CardEntry struct {
	Name  string
	Pairs int
}

// DatasetCard renders the README.md for an uploaded dataset: YAML front
// matter the Hub viewer understands plus a short per-file table.
func DatasetCard(repoID string, entries []CardEntry) string {
	total := 0
	for _, e := range entries {
		total += e.Pairs
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.WriteString("task_categories:\n- question-answering\n")
	sb.WriteString("language:\n- en\n")
	sb.WriteString("tags:\n- synthetic\n- qa\n")
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", repoID))
	sb.WriteString("Question-answer training pairs extracted from technical documents. ")
	sb.WriteString("Each line is a JSON object with `question`, `answer`, and `context` fields.\n\n")
	sb.WriteString(fmt.Sprintf("Total pairs: %d\n\n", total))

	sb.WriteString("| File | Pairs |\n|---|---|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", e.Name, e.Pairs))
	}
	sb.WriteString("\nGenerated with [corpusforge](https://github.com/lamim/corpusforge).\n")
	return sb.String()
}
