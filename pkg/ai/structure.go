package ai

import (
	"strings"

	"golang.org/x/net/html"
)

// TagSequence lists the start and end tags of an HTML fragment in document
// order, e.g. ["<p>", "<strong>", "</strong>", "</p>"]. Self-closing tags
// appear once.
func TagSequence(fragment string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var sequence []string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return sequence
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			sequence = append(sequence, "<"+string(name)+">")
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			sequence = append(sequence, "</"+string(name)+">")
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			sequence = append(sequence, "<"+string(name)+"/>")
		}
	}
}

// SameStructure reports whether two fragments have identical tag sequences.
func SameStructure(original, translated string) bool {
	left := TagSequence(original)
	right := TagSequence(translated)
	if len(left) != len(right) {
		return false
	}
	for idx := range left {
		if left[idx] != right[idx] {
			return false
		}
	}
	return true
}
