// Package title derives short human-readable cluster labels from member
// texts. The heuristic is deterministic and needs no external generation:
// it counts proper nouns, quoted phrases and acronyms across the texts and
// joins the most frequent ones.
package title

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	maxTitleLength = 100
	topPhrases     = 3
	candidatePool  = 10
	minPhraseLen   = 3
	fallbackWords  = 3
	minWordLen     = 4
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mentionPattern = regexp.MustCompile(`@\S+`)
	quotedPattern  = regexp.MustCompile(`«([^»]+)»|"([^"]+)"`)
)

// geoTerms are well-known geographic and organizational names counted as
// candidates even when word-shape rules miss them.
var geoTerms = map[string]struct{}{
	"Россия": {}, "Украина": {}, "США": {}, "ЕС": {}, "НАТО": {},
	"Москва": {}, "Киев": {}, "Вашингтон": {}, "Брюссель": {},
	"Париж": {}, "Берлин": {}, "Лондон": {}, "Токио": {}, "Пекин": {},
}

// stopWords are too generic to carry a title.
var stopWords = map[string]struct{}{
	"это": {}, "что": {}, "как": {}, "для": {}, "был": {}, "была": {},
	"было": {}, "были": {}, "или": {}, "вот": {}, "все": {}, "быть": {},
	"the": {}, "and": {}, "for": {}, "was": {}, "this": {},
}

// Summarize builds a cluster title from the given member texts. It returns
// the top key phrases joined with a bullet separator, capped at 100
// characters, or the leading words of the first text when no phrase
// candidates exist. Empty input yields an empty string.
func Summarize(texts []string) string {
	if len(texts) == 0 {
		return ""
	}

	counts := make(map[string]int)

	var order []string

	for _, text := range texts {
		for _, phrase := range extractKeyPhrases(text) {
			if counts[phrase] == 0 {
				order = append(order, phrase)
			}

			counts[phrase]++
		}
	}

	// Stable ranking: frequency first, then first appearance.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > candidatePool {
		order = order[:candidatePool]
	}

	var picked []string

	for _, phrase := range order {
		if _, stop := stopWords[strings.ToLower(phrase)]; stop {
			continue
		}

		if len([]rune(phrase)) < minPhraseLen {
			continue
		}

		picked = append(picked, phrase)
		if len(picked) == topPhrases {
			break
		}
	}

	if len(picked) > 0 {
		return truncate(strings.Join(picked, " • "), maxTitleLength)
	}

	return fallbackTitle(texts[0])
}

func extractKeyPhrases(text string) []string {
	cleaned := stripNoise(text)

	var phrases []string

	for _, match := range quotedPattern.FindAllStringSubmatch(cleaned, -1) {
		quoted := match[1]
		if quoted == "" {
			quoted = match[2]
		}

		if quoted = strings.TrimSpace(quoted); quoted != "" {
			phrases = append(phrases, quoted)
		}
	}

	for _, word := range splitWords(cleaned) {
		switch {
		case isAcronym(word):
			phrases = append(phrases, word)
		case isCapitalized(word):
			phrases = append(phrases, word)
		}

		if _, ok := geoTerms[word]; ok {
			phrases = append(phrases, word)
		}
	}

	return phrases
}

func stripNoise(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")

	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) {
			return -1
		}

		return r
	}, text)
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func isAcronym(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 {
		return false
	}

	for _, r := range runes {
		if !unicode.IsUpper(r) {
			return false
		}
	}

	return true
}

func isCapitalized(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 {
		return false
	}

	if !unicode.IsUpper(runes[0]) {
		return false
	}

	for _, r := range runes[1:] {
		if !unicode.IsLower(r) {
			return false
		}
	}

	return true
}

func fallbackTitle(text string) string {
	var words []string

	for _, word := range splitWords(stripNoise(text)) {
		if len([]rune(word)) >= minWordLen {
			words = append(words, word)
		}

		if len(words) == fallbackWords {
			break
		}
	}

	if len(words) > 0 {
		return strings.Join(words, " ")
	}

	return truncate(strings.TrimSpace(text), 50)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}
