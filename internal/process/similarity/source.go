package similarity

import (
	"strings"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
)

const (
	labelModules = "Modules: "
	labelTitle   = "Title: "
	labelText    = "Text: "
	labelAnswer  = "Answer: "
)

// BuildSourceText assembles the embedding input for a question. The title is
// repeated to weight it. Output is NFC-normalized so equal content compares equal.
func BuildSourceText(q *domain.Question, answerSummary string) string {
	lines := make([]string, 0, 5)

	if len(q.Modules) > 0 {
		titles := make([]string, 0, len(q.Modules))
		for _, m := range q.Modules {
			titles = append(titles, m.DisplayTitle())
		}

		lines = append(lines, labelModules+strings.Join(titles, "; "))
	}

	if title := strings.TrimSpace(q.Title); title != "" {
		lines = append(lines, labelTitle+title, labelTitle+title)
	}

	lines = append(lines, labelText+q.Body)

	if summary := strings.TrimSpace(answerSummary); summary != "" {
		lines = append(lines, labelAnswer+summary)
	}

	return textutil.Normalize(strings.Join(lines, "\n"))
}
