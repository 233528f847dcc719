package router

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// newReqID returns a short id that ties together the log lines of one command.
func newReqID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}

// parseCommand splits "/cmd@bot arg1 "arg 2"" into a lowercase command name,
// the addressed bot username (empty when absent) and the arguments. ok is
// false when text is not a command.
func parseCommand(text string) (name, bot string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", nil, false
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return "", "", nil, false
	}
	name = strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name, bot = name[:i], name[i+1:]
	}
	if name == "" {
		return "", "", nil, false
	}
	return strings.ToLower(name), bot, parts[1:], true
}

// addressedTo reports whether a command mentioning bot is meant for self.
// Commands without a mention, or when self is unknown, are accepted.
func addressedTo(bot, self string) bool {
	self = strings.TrimPrefix(strings.TrimSpace(self), "@")
	if bot == "" || self == "" {
		return true
	}
	return strings.EqualFold(bot, self)
}

// tokenizeCommandLine splits command text on whitespace, honouring single
// and double quotes and backslash escapes.
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ && ch == qChar:
			inQ = false
		case inQ:
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			inQ, qChar = true, ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}
