package cluster

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxTitleWords is the number of keywords in a cluster title.
const DefaultMaxTitleWords = 5

// MixedTopicsTitle labels a cluster whose titles have no usable keywords.
const MixedTopicsTitle = "Mixed topics"

const minKeywordLen = 3

// stopwords are common English and Russian function words.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the a an and or but of in on for to with by from at as is are be was were
		that this it its into about over after before vs
		и в во на по из за с со от для как но или к о об у над под не это этот эта эти тот та те`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether w (already lowercased) is ignored when building titles.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Keywords splits a title into lowercase tokens. Every rune that is not a letter, number,
// whitespace or hyphen separates tokens. Stopwords and tokens shorter than three
// characters are dropped.
func Keywords(title string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || r == '-' {
			return r
		}
		return ' '
	}, strings.ToLower(title))

	var out []string
	for _, w := range strings.Fields(cleaned) {
		if IsStopword(w) || utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TitleFor labels a cluster from its member titles: the maxWords most frequent keywords,
// ties broken by first occurrence, with the first word capitalized. maxWords <= 0 means
// DefaultMaxTitleWords. Returns MixedTopicsTitle when no keyword survives.
func TitleFor(titles []string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultMaxTitleWords
	}
	freq := make(map[string]int)
	var order []string
	for _, t := range titles {
		for _, w := range Keywords(t) {
			if freq[w] == 0 {
				order = append(order, w)
			}
			freq[w]++
		}
	}
	if len(order) == 0 {
		return MixedTopicsTitle
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > maxWords {
		order = order[:maxWords]
	}
	order[0] = capitalize(order[0])
	return strings.Join(order, " ")
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + w[size:]
}
