package hostconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidHeaders = errors.New("invalid headers")
	ErrInvalidURL     = errors.New("invalid URL")

	httpURLPattern = regexp.MustCompile(`(?i)^https?://`)
)

// ValidURL reports whether raw starts with http:// or https://.
func ValidURL(raw string) bool {
	return httpURLPattern.MatchString(strings.TrimSpace(raw))
}

// ParseHeaders parses a JSON object of header names to string values. Blank
// input yields no headers.
func ParseHeaders(raw string) (map[string]string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(v), &decoded); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON object: %v", ErrInvalidHeaders, err)
	}
	out := make(map[string]string, len(decoded))
	for k, val := range decoded {
		name := strings.TrimSpace(k)
		if name == "" {
			return nil, fmt.Errorf("%w: empty header name", ErrInvalidHeaders)
		}
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: header %q must be a string", ErrInvalidHeaders, name)
		}
		out[name] = s
	}
	return out, nil
}

// ParseHeaderPairs parses repeated "Name=Value" flag values.
func ParseHeaderPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not Name=Value", ErrInvalidHeaders, pair)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// FormatHeaders renders headers as the JSON object ParseHeaders accepts.
func FormatHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(data)
}
