package summary

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var (
	namePattern      = regexp.MustCompile(`(?:(?i:my name is|this is|my name's|i am|i'm))\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+)?)`)
	companyPattern   = regexp.MustCompile(`(?:(?i:calling from|i'm from|i am from|i work for|i work at|i'm with|i am with|on behalf of))\s+([A-Z0-9][\w&'.-]*(?:\s+[A-Z0-9][\w&'.-]*){0,3})`)
	phonePattern     = regexp.MustCompile(`\+?\(?\d[\d\s().-]{6,}\d`)
	referencePattern = regexp.MustCompile(`(?i)\b(?:order|reference|ref|account|invoice|ticket|case|booking)\s*(?:number|no\.?|#)?\s*(?:is\s+)?[:#]?\s*([A-Z]{0,4}-?\d[\d-]{2,})\b`)
	moneyPattern     = regexp.MustCompile(`(?i)[$€£]\s?\d[\d,]*(?:\.\d{1,2})?|\b\d[\d,]*(?:\.\d{1,2})?\s?(?:dollars|euros|pounds|usd|eur)\b`)
	datePattern      = regexp.MustCompile(`(?i)\b(?:today|tomorrow|next week|(?:next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:st|nd|rd|th)?|\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
)

// Words that follow "this is" without being a name.
var notNames = map[string]bool{
	"About": true, "Regarding": true, "Urgent": true, "Important": true, "The": true,
}

var topicKeywords = map[string][]string{
	"appointment": {"appointment", "schedule", "booking", "book a", "reschedule", "availability"},
	"billing":     {"invoice", "bill", "payment", "charge", "refund", "pay "},
	"support":     {"problem", "issue", "broken", "not working", "error", "help with"},
	"sales":       {"price", "pricing", "quote", "buy", "purchase", "cost"},
	"callback":    {"call back", "callback", "call me", "reach me"},
	"complaint":   {"complaint", "unhappy", "disappointed", "frustrated"},
	"delivery":    {"delivery", "shipping", "package", "tracking"},
}

// HeuristicExtractor extracts records with regular expressions and keyword
// lists. It never fails.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates a heuristic extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract builds a record from the caller's side of the transcript.
func (h *HeuristicExtractor) Extract(ctx context.Context, in Input) (Record, error) {
	callerTurns := in.callerText()
	text := strings.Join(callerTurns, " ")

	r := Record{
		CallerName: findName(text),
		Company:    findSubmatch(companyPattern, text),
		Phone:      findPhone(text),
		Topics:     findTopics(text),
		Details:    map[string]string{},
	}
	r.Company = strings.TrimRight(r.Company, ".,")

	if ref := findSubmatch(referencePattern, text); ref != "" {
		r.Details["reference"] = ref
	}
	if amount := moneyPattern.FindString(text); amount != "" {
		r.Details["amount"] = strings.TrimSpace(amount)
	}
	if date := datePattern.FindString(text); date != "" {
		r.Details["date"] = date
	}

	if text == "" {
		r.Summary = "No caller speech captured."
	} else {
		r.Summary = text
	}

	return finalize(r, in), nil
}

func findSubmatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func findName(text string) string {
	for _, m := range namePattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		first := strings.Fields(name)[0]
		if notNames[first] {
			continue
		}
		return name
	}
	return ""
}

func findPhone(text string) string {
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		var digits strings.Builder
		for _, r := range candidate {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if n := digits.Len(); n >= 7 && n <= 15 {
			if strings.HasPrefix(strings.TrimSpace(candidate), "+") {
				return "+" + digits.String()
			}
			return digits.String()
		}
	}
	return ""
}

func findTopics(text string) []string {
	lower := strings.ToLower(text)
	topics := []string{}
	for topic, words := range topicKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				topics = append(topics, topic)
				break
			}
		}
	}
	sort.Strings(topics)
	return topics
}
