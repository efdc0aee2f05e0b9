package mail

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// SanitizeHeader removes CRLF characters that could be used for header injection.
func SanitizeHeader(input string) string {
	sanitized := strings.ReplaceAll(input, "\r", "")
	sanitized = strings.ReplaceAll(sanitized, "\n", "")
	return strings.TrimSpace(sanitized)
}

// NormalizeAddress parses an RFC 5322 address and returns the lower-cased
// addr-spec and the display name.
func NormalizeAddress(raw string) (string, string, error) {
	addr, err := mail.ParseAddress(SanitizeHeader(raw))
	if err != nil {
		return "", "", fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return strings.ToLower(addr.Address), addr.Name, nil
}

// BodyText returns the text stored on the ticket: the plain part when present,
// otherwise the HTML part with every tag stripped.
func (m Message) BodyText() string {
	if strings.TrimSpace(m.Body) != "" {
		return strings.TrimSpace(m.Body)
	}
	if m.HTMLBody == "" {
		return ""
	}
	return strings.TrimSpace(stripPolicy.Sanitize(m.HTMLBody))
}

// SanitizeAttachmentName strips any path components and returns a safe filename.
func SanitizeAttachmentName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "/")
	base := strings.TrimSpace(filepath.Base(name))
	if base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}
