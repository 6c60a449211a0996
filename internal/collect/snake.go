package collect

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go identifier to a tool name: SayHello becomes
// say_hello, HTTPGet becomes http_get.
func SnakeCase(ident string) string {
	runes := []rune(ident)
	var b strings.Builder
	b.Grow(len(ident) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
