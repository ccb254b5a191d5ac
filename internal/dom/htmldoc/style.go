// internal/dom/htmldoc/style.go
package htmldoc

import "strings"

// declarationLexer scans the body of an inline style attribute ("prop: value; ...").
type declarationLexer struct {
	input string
	pos   int
}

// parseInlineStyle returns the declarations of a style attribute keyed by lower-case
// property. Malformed declarations are skipped; the last occurrence of a property wins
// unless an earlier one was marked !important.
func parseInlineStyle(input string) map[string]string {
	decls := make(map[string]string)
	important := make(map[string]bool)

	l := &declarationLexer{input: input}
	for {
		l.consumeWhitespace()
		if l.eof() {
			break
		}
		if l.startsWith("/*") {
			l.skipComment()
			continue
		}
		prop, val, imp := l.parseDeclaration()
		if prop == "" || val == "" {
			continue
		}
		prop = strings.ToLower(prop)
		if important[prop] && !imp {
			continue
		}
		decls[prop] = strings.ToLower(val)
		important[prop] = imp
	}
	return decls
}

func (l *declarationLexer) parseDeclaration() (prop, val string, important bool) {
	if !isIdentStart(l.current()) {
		l.skipPast(';')
		return
	}
	prop = l.parseIdentifier()
	l.consumeWhitespace()

	if l.eof() || l.current() != ':' {
		l.skipPast(';')
		return
	}
	l.pos++
	l.consumeWhitespace()

	val = l.parseValue()
	if strings.HasSuffix(strings.ToLower(val), "!important") {
		important = true
		val = strings.TrimSpace(val[:len(val)-len("!important")])
	}

	l.consumeWhitespace()
	if !l.eof() && l.current() == ';' {
		l.pos++
	}
	return
}

func (l *declarationLexer) parseValue() string {
	start := l.pos
	for !l.eof() {
		ch := l.current()
		if ch == ';' {
			break
		}
		if ch == '"' || ch == '\'' {
			l.skipQuoted(ch)
			continue
		}
		if ch == '(' {
			l.skipParens()
			continue
		}
		l.pos++
	}
	return strings.TrimSpace(l.input[start:l.pos])
}

func (l *declarationLexer) parseIdentifier() string {
	start := l.pos
	for !l.eof() && isIdentChar(l.current()) {
		l.pos++
	}
	return l.input[start:l.pos]
}

func (l *declarationLexer) skipQuoted(quote byte) {
	l.pos++
	for !l.eof() {
		ch := l.input[l.pos]
		l.pos++
		if ch == '\\' {
			l.pos++
		} else if ch == quote {
			return
		}
	}
}

func (l *declarationLexer) skipParens() {
	depth := 0
	for !l.eof() {
		ch := l.input[l.pos]
		l.pos++
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (l *declarationLexer) skipComment() {
	l.pos += 2
	if end := strings.Index(l.input[l.pos:], "*/"); end == -1 {
		l.pos = len(l.input)
	} else {
		l.pos += end + 2
	}
}

func (l *declarationLexer) skipPast(target byte) {
	for !l.eof() && l.current() != target {
		l.pos++
	}
	if !l.eof() {
		l.pos++
	}
}

func (l *declarationLexer) consumeWhitespace() {
	for !l.eof() && isSpace(l.current()) {
		l.pos++
	}
}

func (l *declarationLexer) startsWith(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *declarationLexer) eof() bool { return l.pos >= len(l.input) }

func (l *declarationLexer) current() byte {
	if l.eof() {
		return 0
	}
	return l.input[l.pos]
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
