package broadcast

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	kit "wablast/internal/transport"
)

// Bare numeric direct addresses: 10-15 digits, nothing else.
var directNumberRe = regexp.MustCompile(`^\d{10,15}$`)

// namePlaceholder is the literal token stripped from uploaded message lines.
const namePlaceholder = "{name}"

// ParseRecipients filters a comma-separated receiver list. A token is kept
// when it is a bare 10-15 digit number (suffixed into a direct JID) or
// already a group JID; anything else is dropped silently, order preserved.
func ParseRecipients(raw string) []kit.Recipient {
	parts := strings.Split(raw, ",")
	out := make([]kit.Recipient, 0, len(parts))
	for _, p := range parts {
		tok := strings.TrimSpace(p)
		switch {
		case tok == "":
		case directNumberRe.MatchString(tok):
			out = append(out, kit.Recipient(tok+kit.DirectSuffix))
		case strings.HasSuffix(tok, kit.GroupSuffix):
			out = append(out, kit.Recipient(tok))
		}
	}
	return out
}

// DeriveLines builds message bodies from the uploaded file: per non-empty
// line, the literal {name} placeholder is removed, the sender name is
// prepended and the result trimmed. Blank input lines are skipped outright
// (before the name is prepended), and lines that end up empty are dropped.
func DeriveLines(name string, r io.Reader) ([]string, error) {
	name = strings.TrimSpace(name)
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		body := strings.ReplaceAll(raw, namePlaceholder, "")
		if name != "" {
			body = name + " " + body
		}
		body = strings.TrimSpace(body)
		if body == "" {
			continue
		}
		lines = append(lines, body)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
