package queue

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EscapePayload percent-encodes every whitespace character inside ref so the
// command stays on one line and the daemon sees a single token.
func EscapePayload(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.IndexFunc(ref, unicode.IsSpace) < 0 {
		return ref
	}

	var b strings.Builder
	for _, r := range ref {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		for _, c := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// ParseMetadata extracts key="value" pairs from daemon metadata output.
// Section headers and malformed lines are skipped; the first value of a
// repeated key wins, which is the current request in Liquidsoap's listing.
func ParseMetadata(raw string) map[string]string {
	meta := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if _, seen := meta[key]; seen {
			continue
		}
		meta[key] = unquote(strings.TrimSpace(line[idx+1:]))
	}
	return meta
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
		return v[1 : len(v)-1]
	}
	return v
}
