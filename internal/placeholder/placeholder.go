// Package placeholder extracts and rewrites named placeholders (:name) in SQL text.
//
// Extraction skips string literals, quoted identifiers, comments, and
// PostgreSQL-style casts (::type), so placeholder names are only recognized
// in positions where a bind parameter is legal.
package placeholder

import "strings"

// Extract returns the unique placeholder names in sql, in order of first
// appearance. A name may appear multiple times in the SQL; it is reported once.
func Extract(sql string) []string {
	var names []string
	seen := make(map[string]bool)
	scan(sql, func(name string) string {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return ":" + name
	})
	return names
}

// Rewrite replaces every placeholder occurrence with the string returned by
// repl. Occurrences are visited left to right; repl receives the placeholder
// name without the leading colon.
func Rewrite(sql string, repl func(name string) string) string {
	return scan(sql, repl)
}

// scan walks the SQL text once, invoking repl for each placeholder occurrence
// and returning the rewritten text.
func scan(sql string, repl func(name string) string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'':
			j := skipQuoted(sql, i, '\'')
			b.WriteString(sql[i:j])
			i = j
		case c == '"':
			j := skipQuoted(sql, i, '"')
			b.WriteString(sql[i:j])
			i = j
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			j := strings.IndexByte(sql[i:], '\n')
			if j < 0 {
				b.WriteString(sql[i:])
				i = len(sql)
			} else {
				b.WriteString(sql[i : i+j])
				i += j
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			j := strings.Index(sql[i+2:], "*/")
			if j < 0 {
				b.WriteString(sql[i:])
				i = len(sql)
			} else {
				end := i + 2 + j + 2
				b.WriteString(sql[i:end])
				i = end
			}
		case c == ':':
			// "::" is a cast, not a placeholder.
			if i+1 < len(sql) && sql[i+1] == ':' {
				b.WriteString("::")
				i += 2
				// Skip the cast target so ::integer is not re-examined.
				for i < len(sql) && isNameByte(sql[i]) {
					b.WriteByte(sql[i])
					i++
				}
				continue
			}
			start := i + 1
			end := start
			for end < len(sql) && isNameByte(sql[end]) {
				end++
			}
			if end == start || !isNameStart(sql[start]) {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteString(repl(sql[start:end]))
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past a quoted region starting at i.
// Doubled quote characters inside the region are treated as escapes.
func skipQuoted(sql string, i int, quote byte) int {
	j := i + 1
	for j < len(sql) {
		if sql[j] == quote {
			if j+1 < len(sql) && sql[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(sql)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
