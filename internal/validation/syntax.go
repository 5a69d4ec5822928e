package validation

import (
	"strings"
	"unicode"
)

const (
	maxAddressLen = 254
	maxLocalLen   = 64
	maxDomainLen  = 253
	maxLabelLen   = 63
)

// SyntaxError explains why an address failed the structural rule.
type SyntaxError struct {
	Reason string
}

func (e *SyntaxError) Error() string { return "invalid syntax: " + e.Reason }

// CheckSyntax applies the structural rule local@domain: both parts
// non-empty, the domain dotted with no empty labels, no whitespace or
// control characters, within RFC 5321 length limits. The address is split at
// its last '@'. It returns the lowercase domain on success.
func CheckSyntax(addr string) (domain string, err error) {
	addr = strings.TrimSpace(addr)
	if len(addr) > maxAddressLen {
		return "", &SyntaxError{Reason: "address too long"}
	}
	for _, r := range addr {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", &SyntaxError{Reason: "contains whitespace or control characters"}
		}
	}

	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return "", &SyntaxError{Reason: "missing @"}
	}
	local, domain := addr[:at], addr[at+1:]
	if local == "" {
		return "", &SyntaxError{Reason: "empty local part"}
	}
	if domain == "" {
		return "", &SyntaxError{Reason: "empty domain"}
	}
	if len(local) > maxLocalLen {
		return "", &SyntaxError{Reason: "local part too long"}
	}
	if strings.ContainsRune(local, '@') && !isQuoted(local) {
		return "", &SyntaxError{Reason: "unquoted @ in local part"}
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		if !isQuoted(local) {
			return "", &SyntaxError{Reason: "misplaced dot in local part"}
		}
	}

	if len(domain) > maxDomainLen {
		return "", &SyntaxError{Reason: "domain too long"}
	}
	if !strings.Contains(domain, ".") {
		return "", &SyntaxError{Reason: "domain has no dot"}
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return "", &SyntaxError{Reason: "empty domain label"}
		}
		if len(label) > maxLabelLen {
			return "", &SyntaxError{Reason: "domain label too long"}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", &SyntaxError{Reason: "domain label starts or ends with hyphen"}
		}
	}
	return strings.ToLower(domain), nil
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}
