package persistence

import "strings"

// SplitStatements breaks an embedded SQL asset into individually executable
// statements. pgx executes one statement per Exec call, so the split must not
// cut inside dollar-quoted bodies (DO $$ ... $$) that carry semicolons.
func SplitStatements(script string) []string {
	var (
		out       []string
		current   strings.Builder
		dollarTag string
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	i := 0
	for i < len(script) {
		c := script[i]

		if c == '$' {
			if dollarTag == "" {
				if tag, ok := readDollarTag(script[i:]); ok {
					dollarTag = tag
					current.WriteString(tag)
					i += len(tag)
					continue
				}
			} else if strings.HasPrefix(script[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag)
				dollarTag = ""
				continue
			}
		}

		if c == ';' && dollarTag == "" {
			flush()
			i++
			continue
		}

		current.WriteByte(c)
		i++
	}
	flush()

	return out
}

// readDollarTag recognizes an opening dollar-quote tag ($$, $body$, ...) at
// the start of s.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for j := 1; j < len(s); j++ {
		switch {
		case s[j] == '$':
			return s[:j+1], true
		case s[j] == '_',
			s[j] >= 'a' && s[j] <= 'z',
			s[j] >= 'A' && s[j] <= 'Z',
			s[j] >= '0' && s[j] <= '9':
		default:
			return "", false
		}
	}
	return "", false
}
