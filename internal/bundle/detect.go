package bundle

import (
	"regexp"
	"strings"
)

// DetectModule reports whether src looks like an ES module: its first
// token is export, or import not followed by ( or . (which would be a
// dynamic import or import.meta in a script).
func DetectModule(src string) bool {
	rest := skipSpace(strings.TrimPrefix(src, "\ufeff"))
	if strings.HasPrefix(rest, "#!") {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = skipSpace(rest[i+1:])
		} else {
			return false
		}
	}
	switch {
	case keyword(rest, "export"):
		return true
	case keyword(rest, "import"):
		after := skipSpace(rest[len("import"):])
		return after != "" && after[0] != '(' && after[0] != '.'
	}
	return false
}

var lexicalDecl = regexp.MustCompile(`(^|[^\w$.])(let|const|class)([^\w$]|$)`)

// DeclaresLexical reports whether a script might declare let, const or
// class bindings. It errs towards true: the words inside strings, comments
// or nested blocks count too.
func DeclaresLexical(src string) bool {
	return lexicalDecl.MatchString(src)
}

// keyword reports whether s starts with word as a whole identifier.
func keyword(s, word string) bool {
	if !strings.HasPrefix(s, word) {
		return false
	}
	if len(s) == len(word) {
		return true
	}
	c := s[len(word)]
	return !(c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

// skipSpace drops leading whitespace and comments.
func skipSpace(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n\v\f\u00a0")
		switch {
		case strings.HasPrefix(s, "//"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}
