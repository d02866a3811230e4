// Package parser classifies raw log lines by format and extracts the
// fields a format-aware Annotator can offer collectord's event
// pipeline, in place of the teacher's format-specific LogEntry
// parsers.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cynexa/collectord/internal/event"
)

// Format identifies a recognized log line layout.
type Format string

const (
	FormatJSON            Format = "json"
	FormatApacheCombined  Format = "apache_combined"
	FormatCommon          Format = "common"
	FormatPlain           Format = "plain"
)

var (
	apacheCombinedRegex = regexp.MustCompile(
		`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) \S+" (\d+) (\S+) "([^"]*)" "([^"]*)"`,
	)
	commonLogRegex = regexp.MustCompile(
		`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) \S+" (\d+) (\S+)`,
	)
)

// DetectFormat classifies a line by structure alone; it never fails,
// falling back to FormatPlain when nothing recognizable matches.
func DetectFormat(line string) Format {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return FormatPlain
	}
	if trimmed[0] == '{' && json.Valid([]byte(trimmed)) {
		return FormatJSON
	}
	if apacheCombinedRegex.MatchString(trimmed) {
		return FormatApacheCombined
	}
	if commonLogRegex.MatchString(trimmed) {
		return FormatCommon
	}
	return FormatPlain
}

// jsonFields is the subset of a JSON log record LineClassifier looks
// for when extracting annotation metadata.
type jsonFields struct {
	IP   string `json:"ip_address"`
	User string `json:"user"`
}

// LineClassifier implements event.Annotator, detecting each line's
// format and extracting IP/user fields the way that format encodes
// them, falling back to event.RegexAnnotator's generic scan when the
// line doesn't match a recognized structured format.
type LineClassifier struct {
	fallback event.Annotator
}

// NewLineClassifier creates a format-aware Annotator. A nil fallback
// defaults to event.RegexAnnotator{}.
func NewLineClassifier(fallback event.Annotator) *LineClassifier {
	if fallback == nil {
		fallback = event.RegexAnnotator{}
	}
	return &LineClassifier{fallback: fallback}
}

// Annotate implements event.Annotator.
func (c *LineClassifier) Annotate(line string) event.Meta {
	switch DetectFormat(line) {
	case FormatJSON:
		if m, ok := c.annotateJSON(line); ok {
			return m
		}
	case FormatApacheCombined:
		if m, ok := c.annotateStructured(apacheCombinedRegex, line); ok {
			return m
		}
	case FormatCommon:
		if m, ok := c.annotateStructured(commonLogRegex, line); ok {
			return m
		}
	}
	return c.fallback.Annotate(line)
}

func (c *LineClassifier) annotateJSON(line string) (event.Meta, bool) {
	var fields jsonFields
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return event.Meta{}, false
	}
	var m event.Meta
	if fields.IP != "" {
		ip := fields.IP
		m.IP = &ip
	}
	if fields.User != "" {
		user := fields.User
		m.User = &user
	}
	return m, true
}

// annotateStructured pulls the remote host (group 1) and remote user
// (group 2) fields common to Apache combined and common log format.
func (c *LineClassifier) annotateStructured(re *regexp.Regexp, line string) (event.Meta, bool) {
	matches := re.FindStringSubmatch(line)
	if matches == nil {
		return event.Meta{}, false
	}
	var m event.Meta
	if ip := matches[1]; ip != "" {
		m.IP = &ip
	}
	if user := matches[2]; user != "" && user != "-" {
		m.User = &user
	}
	return m, true
}
