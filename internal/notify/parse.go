package notify

import (
	"fmt"
	"strings"
)

// ParseToggle parses the argument of /notify.
func ParseToggle(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("usage: /notify on|off")
	}
}

// ParseCode extracts the authorization code of /code. A full redirect URL
// with a code parameter is accepted too.
func ParseCode(args string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", fmt.Errorf("usage: /code <code>")
	}
	if i := strings.Index(s, "code="); i >= 0 {
		s = s[i+len("code="):]
		if j := strings.IndexByte(s, '&'); j >= 0 {
			s = s[:j]
		}
	}
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", fmt.Errorf("invalid code")
	}
	return s, nil
}
