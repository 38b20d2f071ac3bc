package usecase

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

const (
	defaultContextHeader = "Retrieved evidence"
	EmptyContextText     = "No grounded evidence was retrieved for this query."
)

// FormatContext renders ranked chunks into the citation-annotated block handed to answer drafting.
func FormatContext(chunks []domain.RetrievalChunk, prefs domain.ContextPreferences) domain.FormattedContext {
	if len(chunks) == 0 {
		return domain.FormattedContext{
			Text:          EmptyContextText,
			TokenEstimate: estimateTokens(EmptyContextText),
			Empty:         true,
		}
	}

	header := strings.TrimSpace(prefs.Header)
	if header == "" {
		header = defaultContextHeader
	}

	var (
		b        strings.Builder
		maxScore float64
	)
	b.WriteString("# ")
	b.WriteString(header)
	b.WriteString("\n")

	for _, c := range chunks {
		score := c.BestScore()
		if score > maxScore {
			maxScore = score
		}

		b.WriteString("\n[")
		b.WriteString(strconv.Itoa(c.Rank))
		b.WriteString("] ")
		b.WriteString(c.CitationLabel)
		b.WriteString("\n")

		b.WriteString("score: ")
		b.WriteString(strconv.FormatFloat(score, 'f', 3, 64))
		b.WriteString(" | year: ")
		if c.Year > 0 {
			b.WriteString(strconv.Itoa(c.Year))
		} else {
			b.WriteString(domain.UnknownValue)
		}
		b.WriteString(" | source: ")
		b.WriteString(c.SourceOrg)
		b.WriteString(" | type: ")
		b.WriteString(c.ContentType)
		b.WriteString("\n")

		if prefs.IncludeURLs && c.CanonicalURL != "" && c.CanonicalURL != domain.UnknownValue {
			b.WriteString("url: ")
			b.WriteString(c.CanonicalURL)
			b.WriteString("\n")
		}
		if prefs.IncludeTags && len(c.Tags) > 0 {
			b.WriteString("tags: ")
			b.WriteString(strings.Join(c.Tags, ", "))
			b.WriteString("\n")
		}
		b.WriteString(truncateRunes(strings.TrimSpace(c.Text), prefs.MaxChunkChars))
		b.WriteString("\n")
	}

	text := b.String()
	return domain.FormattedContext{
		Text:          text,
		TokenEstimate: estimateTokens(text),
		MaxScore:      maxScore,
		ChunkCount:    len(chunks),
	}
}

// estimateTokens approximates tokens as characters / 4.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
