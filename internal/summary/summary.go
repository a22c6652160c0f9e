package summary

import (
	"context"
	"strings"
	"unicode/utf8"
)

// MaxSummaryLength bounds Record.Summary in characters.
const MaxSummaryLength = 300

// Speaker labels a transcript turn.
const (
	SpeakerCaller    = "caller"
	SpeakerAssistant = "assistant"
)

// Turn is one utterance of the call.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Input is everything known about a finished call.
type Input struct {
	Transcript   []Turn
	CallerNumber string
	CompanyName  string
}

// Record is the summary handed to the call log. It is not modified after
// extraction.
type Record struct {
	CallerName string            `json:"caller_name"`
	Company    string            `json:"company"`
	Phone      string            `json:"phone"`
	Summary    string            `json:"summary"`
	Topics     []string          `json:"topics"`
	Details    map[string]string `json:"details"`
}

// Extractor produces a Record from a call.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Record, error)
}

func (in Input) callerText() []string {
	var out []string
	for _, t := range in.Transcript {
		if t.Speaker == SpeakerCaller {
			if text := strings.TrimSpace(t.Text); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// truncate shortens s to at most max characters, cutting at a word boundary
// and marking the cut with "...".
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:max-3])
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:.-") + "..."
}

// finalize enforces the record's bounds.
func finalize(r Record, in Input) Record {
	r.CallerName = strings.TrimSpace(r.CallerName)
	r.Company = strings.TrimSpace(r.Company)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.Phone == "" {
		r.Phone = in.CallerNumber
	}
	r.Summary = truncate(r.Summary, MaxSummaryLength)
	if r.Topics == nil {
		r.Topics = []string{}
	}
	if r.Details == nil {
		r.Details = map[string]string{}
	}
	return r
}
