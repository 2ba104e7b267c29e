// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// Tag store errors
	ErrTagMapFull       = errors.New("conntag: tag map max entries reached")
	ErrUnknownStaticTag = errors.New("conntag: unknown static tag")

	// Packet decoding errors
	ErrPacketTooShort   = errors.New("conntag: packet too short")
	ErrUnsupportedProto = errors.New("conntag: unsupported protocol")

	// Classifier errors
	ErrUnknownDetector = errors.New("conntag: unknown detector")

	// Configuration errors
	ErrConfigInvalid = errors.New("conntag: invalid configuration")
)
