package lifecycle

import (
	"strings"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
)

const (
	// SystemActor closes discussions whose period has ended.
	SystemActor = "system"

	answerHeader    = "✅ FINAL ANSWER\n\n"
	sourcesPrefix   = "\n\n📚 Sources: "
	truncatedMarker = "...\n\n(answer truncated, see full text on site)"
)

func closeNotice(actor string) string {
	switch actor {
	case SystemActor:
		return "🔒 The discussion period is over, the topic is closed."
	case "":
		return "🔒 Discussion closed by an administrator"
	default:
		return "🔒 Discussion closed by " + actor
	}
}

func formatSources(sources []domain.AnswerSource) string {
	parts := make([]string, 0, len(sources))

	for _, s := range sources {
		title := strings.TrimSpace(s.Title)
		url := strings.TrimSpace(s.URL)

		switch {
		case title != "" && url != "":
			parts = append(parts, title+" ("+url+")")
		case title != "":
			parts = append(parts, title)
		case url != "":
			parts = append(parts, url)
		}
	}

	return strings.Join(parts, "; ")
}

// answerMessage renders the final answer within limit UTF-16 units. When the
// answer does not fit it is cut and the truncation marker is appended.
func answerMessage(answer *domain.Answer, limit int) string {
	var footer string
	if src := formatSources(answer.Sources); src != "" {
		footer = sourcesPrefix + src
	}

	text := strings.TrimSpace(answer.Text)
	full := answerHeader + text + footer

	if textutil.UTF16Len(full) <= limit {
		return full
	}

	room := limit - textutil.UTF16Len(answerHeader) - textutil.UTF16Len(truncatedMarker) - textutil.UTF16Len(footer)
	if room <= 0 {
		return textutil.TruncateUTF16(answerHeader+textutil.TruncateUTF16(text, limit)+truncatedMarker, limit)
	}

	return answerHeader + strings.TrimRight(textutil.TruncateUTF16(text, room), " \n") + truncatedMarker + footer
}

// fitMessage cuts text to limit UTF-16 units, ending with the marker when cut.
func fitMessage(text string, limit int) string {
	if textutil.UTF16Len(text) <= limit {
		return text
	}

	return textutil.TruncateUTF16(text, limit-textutil.UTF16Len(truncatedMarker)) + truncatedMarker
}
