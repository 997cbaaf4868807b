package middleware

import (
	"errors"
	"unicode/utf8"
)

// MaxContentLength bounds message content accepted from the admin API and
// the message bus, in bytes.
const MaxContentLength = 16 * 1024

// ValidateContent validates message content.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateChannelID validates a channel ID. IDs are also used as NATS
// subject tokens, so only letters, digits, '-' and '_' are allowed.
func ValidateChannelID(id string) error {
	if len(id) == 0 {
		return errors.New("channel ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("channel ID exceeds maximum length")
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return errors.New("invalid channel ID format")
		}
	}
	return nil
}
