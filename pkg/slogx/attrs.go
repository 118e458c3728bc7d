package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr for the provided error under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Token returns a slog.Attr carrying only a fingerprint of a secret value.
// Log output must never contain raw token material, so the value is reduced
// to its first few characters and its length.
func Token(key, value string) slog.Attr {
	if value == "" {
		return slog.String(key, "<empty>")
	}
	prefix := value
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return slog.String(key, fmt.Sprintf("%s***(%d)", prefix, len(value)))
}

// Stringer returns a slog.Attr with the string representation of the given
// fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}
