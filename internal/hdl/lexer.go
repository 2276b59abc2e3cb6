package hdl

import "strings"

// clean strips line comments, block comments, and collapses runs of
// whitespace to a single space, producing the text the module and statement
// parsers scan over. Nothing is tokenized here — later stages use local
// scanners against the cleaned string.
func clean(src string) (string, error) {
	var b strings.Builder

	runes := []rune(src)
	n := len(runes)

	for i := 0; i < n; i++ {
		c := runes[i]

		switch {
		case c == '/' && i+1 < n && runes[i+1] == '/':
			for i < n && runes[i] != '\n' {
				i++
			}

			b.WriteByte(' ')
			i-- // compensate for loop increment
		case c == '/' && i+1 < n && runes[i+1] == '*':
			i += 2

			closed := false

			for i+1 < n {
				if runes[i] == '*' && runes[i+1] == '/' {
					i++
					closed = true

					break
				}

				i++
			}

			if !closed {
				return "", newErr(InvalidSource, "", "unterminated block comment")
			}

			b.WriteByte(' ')
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			b.WriteByte(' ')
		default:
			b.WriteRune(c)
		}
	}
	// Collapse whitespace runs.
	fields := strings.Fields(b.String())

	return " " + strings.Join(fields, " ") + " ", nil
}
