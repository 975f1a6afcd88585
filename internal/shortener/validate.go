package shortener

import (
	"net/url"
	"strings"

	"github.com/sundayezeilo/linkstat/internal/errx"
)

const (
	MinCodeLength = 3
	MaxCodeLength = 20
	MaxURLLength  = 2048
)

// ValidateCode checks the public code format: 3 to 20 ASCII letters, digits
// or hyphens.
func ValidateCode(code string) error {
	const op = "shortener.ValidateCode"

	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return errx.Errorf(op, errx.Invalid, "code must be %d-%d characters", MinCodeLength, MaxCodeLength)
	}
	for i := 0; i < len(code); i++ {
		if !isCodeChar(code[i]) {
			return errx.Errorf(op, errx.Invalid, "code may only contain letters, digits and hyphens")
		}
	}
	return nil
}

func isCodeChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-'
}

// SanitizeURL trims surrounding whitespace and drops ASCII control characters,
// then requires an absolute http(s) URL with a host.
func SanitizeURL(raw string) (string, error) {
	const op = "shortener.SanitizeURL"

	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", errx.Errorf(op, errx.Invalid, "original_url is required")
	}
	if len(cleaned) > MaxURLLength {
		return "", errx.Errorf(op, errx.Invalid, "original_url exceeds %d characters", MaxURLLength)
	}

	u, err := url.Parse(cleaned)
	if err != nil {
		return "", errx.Errorf(op, errx.Invalid, "original_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errx.Errorf(op, errx.Invalid, "original_url must use http or https")
	}
	if u.Host == "" {
		return "", errx.Errorf(op, errx.Invalid, "original_url must include a host")
	}
	return cleaned, nil
}
