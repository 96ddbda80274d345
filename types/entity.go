package types

import (
	"fmt"
	"strings"
)

// Entity path grammar.
//
// A subscription path is "<topic>/Subscriptions/<name>". Appending the
// dead-letter suffix addresses the subscription's dead-letter sub-queue:
// "<topic>/Subscriptions/<name>/$DeadLetterQueue".
const (
	// SubscriptionPathSegment separates the topic from the subscription name
	// in a canonical subscription path.
	SubscriptionPathSegment = "Subscriptions"

	// DeadLetterPathSegment is the sub-queue suffix addressing dead-lettered
	// messages of an entity.
	DeadLetterPathSegment = "$DeadLetterQueue"

	// pathSeparator separates entity path segments.
	pathSeparator = "/"

	// maxEntityPathLength caps the total length of an entity path.
	maxEntityPathLength = 260
)

// FormatSubscriptionPath returns the canonical path of a subscription on a
// topic: "<topic>/Subscriptions/<name>".
func FormatSubscriptionPath(topicPath, subscriptionName string) string {
	return topicPath + pathSeparator + SubscriptionPathSegment + pathSeparator + subscriptionName
}

// FormatDeadLetterPath returns the path of an entity's dead-letter sub-queue:
// "<entityPath>/$DeadLetterQueue".
func FormatDeadLetterPath(entityPath string) string {
	return entityPath + pathSeparator + DeadLetterPathSegment
}

// SplitSubscriptionPath parses a canonical subscription path back into its
// topic path and subscription name, and reports whether the path addresses
// the subscription's dead-letter sub-queue.
//
// Accepted shapes:
//   - "<topic>/Subscriptions/<name>"
//   - "<topic>/Subscriptions/<name>/$DeadLetterQueue"
//
// Returns ErrMalformedEntityPath for any other shape.
func SplitSubscriptionPath(path string) (topicPath, subscriptionName string, deadLetter bool, err error) {
	segments := strings.Split(path, pathSeparator)

	if len(segments) >= 2 && segments[len(segments)-1] == DeadLetterPathSegment {
		deadLetter = true
		segments = segments[:len(segments)-1]
	}

	// The subscription marker sits second-to-last; everything before it is
	// the topic path (topics themselves may contain separators).
	if len(segments) < 3 || segments[len(segments)-2] != SubscriptionPathSegment {
		return "", "", false, fmt.Errorf("%w: %q", ErrMalformedEntityPath, path)
	}

	subscriptionName = segments[len(segments)-1]
	topicPath = strings.Join(segments[:len(segments)-2], pathSeparator)
	if topicPath == "" || subscriptionName == "" {
		return "", "", false, fmt.Errorf("%w: %q", ErrMalformedEntityPath, path)
	}

	return topicPath, subscriptionName, deadLetter, nil
}

// ValidateEntityPath checks an entity path (a topic path or subscription
// name segment) for structural validity.
//
// Rules:
//   - Must not be empty or whitespace-only
//   - Must not exceed 260 characters
//   - Must not start or end with the path separator
//   - Must not contain empty segments ("a//b")
//   - Must not contain whitespace-only segments
//
// Returns ErrMalformedEntityPath with a detail message on violation.
func ValidateEntityPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is empty", ErrMalformedEntityPath)
	}
	if len(path) > maxEntityPathLength {
		return fmt.Errorf("%w: path exceeds %d characters", ErrMalformedEntityPath, maxEntityPathLength)
	}
	if strings.HasPrefix(path, pathSeparator) || strings.HasSuffix(path, pathSeparator) {
		return fmt.Errorf("%w: path must not start or end with %q", ErrMalformedEntityPath, pathSeparator)
	}
	for _, segment := range strings.Split(path, pathSeparator) {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("%w: path contains an empty segment", ErrMalformedEntityPath)
		}
	}

	return nil
}
