// Package chunker splits long replies into channel-post-sized fragments.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultMaxLength is the outbound message limit in characters.
const DefaultMaxLength = 2000

// Split breaks text into chunks of at most maxLength characters (runes).
// Each cut prefers the last newline before the limit, then the last space,
// then a hard cut at the limit. The remainder is left-trimmed of whitespace
// before the next cut. Text that already fits is returned unmodified as a
// single chunk.
func Split(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	rest := []rune(text)
	if len(rest) <= maxLength {
		return []string{text}
	}

	var chunks []string
	for len(rest) > 0 {
		if len(rest) <= maxLength {
			chunks = append(chunks, string(rest))
			break
		}

		cut := lastIndex(rest[:maxLength], '\n')
		if cut <= 0 {
			cut = lastIndex(rest[:maxLength], ' ')
		}
		// A break at index 0 would emit an empty chunk.
		if cut <= 0 {
			cut = maxLength
		}

		chunks = append(chunks, string(rest[:cut]))
		rest = trimLeftSpace(rest[cut:])
	}

	return chunks
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func trimLeftSpace(runes []rune) []rune {
	return []rune(strings.TrimLeftFunc(string(runes), unicode.IsSpace))
}
