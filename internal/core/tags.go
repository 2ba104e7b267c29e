// Package core defines core types.
package core

import "fmt"

// TagsMaxLength is the size of a connection's dynamic tag buffer.
const TagsMaxLength = 16

// Tags is a dynamic tag buffer. A zero byte is an unset slot.
type Tags [TagsMaxLength]byte

// StaticTag is a coarse, enum-valued protocol classification stored as a
// single byte in a connection's static tag history. Static tags are limited
// to 255; zero is reserved for "no tag".
type StaticTag uint8

const (
	NoTags StaticTag = iota
	HTTP
	LibSSL
	TLS
	HTTP2
	SIP
)

// StaticTagHistoryWidth is the number of codes a history field retains.
const StaticTagHistoryWidth = 8

var staticTagNames = [...]string{
	NoTags: "none",
	HTTP:   "http",
	LibSSL: "libssl",
	TLS:    "tls",
	HTTP2:  "http2",
	SIP:    "sip",
}

// StaticTagNames returns the names of all known static tags, indexed by code.
func StaticTagNames() []string {
	names := make([]string, len(staticTagNames))
	copy(names, staticTagNames[:])
	return names
}

func (t StaticTag) String() string {
	if int(t) < len(staticTagNames) {
		return staticTagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseStaticTag resolves a static tag by name.
func ParseStaticTag(name string) (StaticTag, error) {
	for code, n := range staticTagNames {
		if n == name {
			return StaticTag(code), nil
		}
	}
	return NoTags, fmt.Errorf("%w: %q", ErrUnknownStaticTag, name)
}
