package od

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"sports", []string{"sports", "tournament", "match", "game", "practice", "coach", "team", "athlete"}},
	{"technical", []string{"hackathon", "workshop", "symposium", "technical", "coding", "programming", "project"}},
	{"cultural", []string{"cultural", "fest", "music", "dance", "drama", "debate", "competition"}},
	{"general", []string{"certificate", "participation", "event", "activity", "program", "college", "institute"}},
}

var authorityKeywords = []string{
	"on duty", "od", "permission", "authorized", "approved", "coordinator",
	"faculty", "head", "department", "signature", "stamp", "official",
}

// DefaultKeywords is every category and authority keyword.
func DefaultKeywords() []string {
	var out []string
	for _, c := range categoryKeywords {
		out = append(out, c.keywords...)
	}
	return append(out, authorityKeywords...)
}

// DefaultMinScore is the number of distinct keyword hits that verifies a
// document whose text does not name the activity.
const DefaultMinScore = 3

// Verification is the heuristic verdict for one document.
type Verification struct {
	Verified bool
	Message  string
	Category string
}

// Verifier checks OCR text for evidence of the claimed activity.
type Verifier struct {
	keywords []string
	minScore int
}

// NewVerifier lowercases keywords; an empty list selects DefaultKeywords and
// a non-positive minScore selects DefaultMinScore.
func NewVerifier(keywords []string, minScore int) *Verifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	v := &Verifier{keywords: make([]string, 0, len(keywords)), minScore: minScore}
	seen := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && !seen[k] {
			seen[k] = true
			v.keywords = append(v.keywords, k)
		}
	}
	return v
}

// Verify passes a document that names the activity, or one that carries at
// least minScore distinct keywords.
func (v *Verifier) Verify(text, activityName string) Verification {
	lower := strings.ToLower(text)
	name := strings.ToLower(strings.TrimSpace(activityName))
	category := detectCategory(lower)

	if name != "" && strings.Contains(lower, name) {
		return Verification{Verified: true, Message: "Activity name found in document", Category: category}
	}
	if v.score(lower) < v.minScore {
		return Verification{Message: "Insufficient evidence of valid extracurricular activity"}
	}
	if category == "" {
		return Verification{Verified: true, Message: "Activity keywords found in document"}
	}
	return Verification{Verified: true, Message: "Valid " + capitalize(category) + " activity detected", Category: category}
}

func (v *Verifier) score(lower string) int {
	n := 0
	for _, k := range v.keywords {
		if containsWord(lower, k) {
			n++
		}
	}
	return n
}

func detectCategory(lower string) string {
	best, bestScore := "", 0
	for _, c := range categoryKeywords {
		score := 0
		for _, k := range c.keywords {
			if containsWord(lower, k) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c.name, score
		}
	}
	return best
}

// containsWord matches word only at word boundaries so that "od" does not
// match inside "good".
func containsWord(text, word string) bool {
	for from := 0; from <= len(text)-len(word); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
