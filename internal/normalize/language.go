package normalize

import (
	"strings"
	"unicode"
)

// englishTokens are common words in English job postings. Any one of them is
// enough to accept text that is not entirely Latin script.
var englishTokens = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "you": {}, "our": {}, "we": {},
	"to": {}, "of": {}, "in": {}, "is": {}, "are": {}, "will": {}, "team": {},
	"work": {}, "job": {}, "role": {}, "experience": {}, "skills": {},
	"developer": {}, "engineer": {}, "manager": {}, "senior": {}, "junior": {},
	"software": {}, "remote": {}, "intern": {}, "assistant": {}, "officer": {},
	"analyst": {}, "designer": {}, "sales": {}, "marketing": {}, "data": {},
}

// IsTargetLanguage reports whether text plausibly is English. It accepts text
// whose letters are all Latin script, or text containing any common English
// token. Empty text is accepted; callers decide whether emptiness is valid.
func IsTargetLanguage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if allLatin(text) {
		return true
	}
	for _, word := range strings.FieldsFunc(strings.ToLower(text), notLetter) {
		if _, ok := englishTokens[word]; ok {
			return true
		}
	}
	return false
}

func allLatin(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r)
}
