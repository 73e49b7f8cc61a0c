package index

import (
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
)

const markerKey = "array_dynamic"

// Marker is a parsed dynamic-array annotation.
type Marker struct {
	// Source optionally names the input sequence the array iterates.
	Source document.Path
}

// ParseMarker recognises "{# array_dynamic: true #}" with an optional
// ", source: path" clause.
func ParseMarker(text string) (Marker, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{#") || !strings.HasSuffix(text, "#}") || len(text) < 4 {
		return Marker{}, false
	}
	return parseMarkerBody(text[2 : len(text)-2])
}

// parseCommentMarker recognises the marker written as a YAML comment
// ("# array_dynamic: true") on a sequence or its key.
func parseCommentMarker(comment string) (Marker, bool) {
	for _, line := range strings.Split(comment, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if m, ok := parseMarkerBody(line); ok {
			return m, true
		}
	}
	return Marker{}, false
}

func parseMarkerBody(body string) (Marker, bool) {
	var (
		marker  Marker
		enabled bool
	)
	for _, part := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch key {
		case markerKey:
			enabled = strings.EqualFold(value, "true")
		case "source":
			path, err := document.ParsePath(value)
			if err == nil && !path.IsRoot() {
				marker.Source = path
			}
		}
	}
	return marker, enabled
}
