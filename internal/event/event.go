// Package event defines the wire-level record shipped by the collector
// and the pure annotation step that produces one from a tailed line.
package event

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Meta is the small, optional set of fields extracted from a raw line.
type Meta struct {
	IP   *string `json:"ip"`
	User *string `json:"user"`
}

// Collector identifies the process that produced an Event.
type Collector struct {
	Host string `json:"host"`
}

// Event is an immutable record describing one observed line.
//
// ClientUUID is stable across retries of the same Event: a batch that
// is spooled and replayed later carries the same ClientUUID values it
// was created with.
type Event struct {
	ClientUUID string    `json:"client_uuid"`
	Ts         int64     `json:"ts"`
	Source     string    `json:"source"`
	Msg        string    `json:"msg"`
	Meta       Meta      `json:"meta"`
	Collector  Collector `json:"collector"`
}

// Batch is an ordered group of Events transmitted or spooled together.
type Batch struct {
	Events []Event `json:"events"`
}

// Annotator extracts metadata from a raw line. Implementations must be
// pure functions of their input; the only permitted non-determinism in
// the event pipeline is the ClientUUID assigned by New.
type Annotator interface {
	Annotate(line string) Meta
}

// New builds an Event from a raw line using ann to populate Meta.
// The trailing newline must already be stripped from line by the
// caller (the follower never hands a terminator to the buffer).
func New(line, source string, now time.Time, host string, ann Annotator) Event {
	return Event{
		ClientUUID: uuid.NewString(),
		Ts:         now.Unix(),
		Source:     source,
		Msg:        line,
		Meta:       ann.Annotate(line),
		Collector:  Collector{Host: host},
	}
}

var (
	ipPattern   = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d{1,2})\.){3}(?:25[0-5]|2[0-4]\d|1?\d{1,2})\b`)
	userPattern = regexp.MustCompile(`(?:user=|for user |user )([A-Za-z0-9_.\-]+)`)
)

// RegexAnnotator is the default Annotator, grounded on the IP/user
// extraction regexes from the original single-file collector. It never
// fails: unmatched fields come back nil.
type RegexAnnotator struct{}

// Annotate implements Annotator.
func (RegexAnnotator) Annotate(line string) Meta {
	var m Meta
	if ip := ipPattern.FindString(line); ip != "" {
		m.IP = &ip
	}
	if match := userPattern.FindStringSubmatch(line); len(match) == 2 {
		user := match[1]
		m.User = &user
	}
	return m
}
