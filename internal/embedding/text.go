package embedding

// DefaultMaxChars bounds the text sent to the embedder for one item.
const DefaultMaxChars = 2000

// itemSeparator joins an item's title and summary.
const itemSeparator = " — "

// ItemText builds the text embedded for one feed item: title, separator, summary,
// truncated to maxChars characters (runes). maxChars <= 0 means DefaultMaxChars.
func ItemText(title, summary string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text := title + itemSeparator + summary
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}
