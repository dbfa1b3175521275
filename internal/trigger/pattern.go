package trigger

import (
	"fmt"
	"strings"
)

// Params holds the wildcard values bound by a pattern match.
type Params map[string]string

// pattern is a document path template such as
// "organizations/{organization}/slots/{slotId}".
type pattern struct {
	raw      string
	segments []string
}

func parsePattern(raw string) (pattern, error) {
	segments := strings.Split(raw, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return pattern{}, fmt.Errorf("pattern %q must address documents", raw)
	}
	seen := map[string]bool{}
	for _, s := range segments {
		if s == "" {
			return pattern{}, fmt.Errorf("pattern %q has an empty segment", raw)
		}
		if name, ok := wildcard(s); ok {
			if name == "" || seen[name] {
				return pattern{}, fmt.Errorf("pattern %q has a bad wildcard %q", raw, s)
			}
			seen[name] = true
		}
	}
	return pattern{raw: raw, segments: segments}, nil
}

func wildcard(segment string) (string, bool) {
	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

func (p pattern) match(path string) (Params, bool) {
	segments := strings.Split(path, "/")
	if len(segments) != len(p.segments) {
		return nil, false
	}
	params := Params{}
	for i, s := range p.segments {
		if name, ok := wildcard(s); ok {
			if segments[i] == "" {
				return nil, false
			}
			params[name] = segments[i]
			continue
		}
		if s != segments[i] {
			return nil, false
		}
	}
	return params, true
}
