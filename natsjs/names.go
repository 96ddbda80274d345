package natsjs

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// defaultSessionToken is the subject token used for sessionless messages.
const defaultSessionToken = "_default_"

// sanitizeName replaces characters invalid in NATS stream/consumer names
// with underscore (_).
//
// NATS name restrictions:
// - Cannot contain whitespace
// - Cannot contain . (dot)
// - Cannot contain * (asterisk)
// - Cannot contain > (greater than)
// - Cannot contain path separators (/ or \)
// - Cannot contain non-printable characters
//
// Replacement is lossy ("a/b" and "a.b" collapse to "a_b"), so whenever any
// character was replaced a short xxh3 hash of the original is appended to
// keep distinct inputs distinct.
func sanitizeName(name string) string {
	var result strings.Builder
	result.Grow(len(name))

	replaced := false
	for _, r := range name {
		// Check for invalid characters
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || // whitespace
			r == '.' || r == '*' || r == '>' || // special chars
			r == '/' || r == '\\' || // path separators
			r < 32 || r == 127 { // non-printable
			result.WriteRune('_')
			replaced = true
		} else {
			result.WriteRune(r)
		}
	}

	if !replaced {
		return result.String()
	}

	return fmt.Sprintf("%s_%08x", result.String(), uint32(xxh3.HashString(name)))
}

// subjectToken reports whether s is usable as a single NATS subject token.
//
// A token must be non-empty and free of whitespace, subject separators and
// wildcards.
func validSubjectToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
			r == '.' || r == '*' || r == '>' ||
			r < 32 || r == 127 {
			return false
		}
	}

	return true
}

// streamName derives the JetStream stream name for a topic path.
func streamName(topicPath string) string {
	return sanitizeName(topicPath)
}

// messageSubject returns the publish subject for a message of the given
// session on the topic ("_default_" when sessionID is empty).
func messageSubject(root, sessionID string) string {
	if sessionID == "" {
		sessionID = defaultSessionToken
	}

	return root + ".msg." + sessionID
}

// messageFilter returns the consumer filter admitting every message subject
// of the topic.
func messageFilter(root string) string {
	return root + ".msg.>"
}

// deadLetterSubject returns the subject dead-lettered copies are published to
// for the given subscription.
func deadLetterSubject(root, subscriptionName string) string {
	return root + ".dlq." + sanitizeName(subscriptionName)
}
