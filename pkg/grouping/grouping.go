// Package grouping classifies a message's position within a visual run
// given its immediate neighbors. All functions are pure; a nil neighbor is
// always treated as separating, never as same-author.
package grouping

import (
	"time"

	"chatpipe/pkg/models"
)

// SeparatorThreshold is the elapsed time between adjacent messages that
// forces a new visual group regardless of author.
const SeparatorThreshold = 15 * time.Minute

// SameAuthor reports whether both messages exist and share an author.
func SameAuthor(a, b *models.Message) bool {
	return a != nil && b != nil && a.Author == b.Author
}

// TimestampSeparated reports whether cur starts a new time block: true when
// prev is nil or more than SeparatorThreshold elapsed between the two.
func TimestampSeparated(prev, cur *models.Message) bool {
	if prev == nil {
		return true
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) > SeparatorThreshold
}

// IsFirstOfGroup reports whether cur opens a run. A SYSTEM predecessor
// interrupts the run without taking part in the author comparison.
func IsFirstOfGroup(prev, cur *models.Message) bool {
	if prev == nil {
		return true
	}
	if TimestampSeparated(prev, cur) {
		return true
	}
	if prev.Kind == models.KindSystem {
		return true
	}
	return !SameAuthor(prev, cur)
}

// IsLastOfGroup is the mirror of IsFirstOfGroup under order reversal.
func IsLastOfGroup(cur, next *models.Message) bool {
	if next == nil {
		return true
	}
	if TimestampSeparated(cur, next) {
		return true
	}
	if next.Kind == models.KindSystem {
		return true
	}
	return !SameAuthor(cur, next)
}

// IsMiddleOfGroup reports whether cur sits strictly inside a run: no
// boundary on either side and both neighbors share the author.
func IsMiddleOfGroup(prev, cur, next *models.Message) bool {
	return !IsFirstOfGroup(prev, cur) && !IsLastOfGroup(cur, next) &&
		SameAuthor(prev, cur) && SameAuthor(cur, next)
}

// ShowAvatar reports whether cur renders an avatar: only on the last
// message of a run authored by someone other than the viewer.
func ShowAvatar(cur, next *models.Message, viewer string) bool {
	if cur == nil || cur.Author == viewer {
		return false
	}
	return IsLastOfGroup(cur, next)
}

// NameDisplay is the display-name decision for a message: whether to show
// the author name and whether to suffix the owner marker.
type NameDisplay struct {
	Show        bool
	OwnerMarker bool
}

// ShowDisplayName decides name visibility: only on the first message of a
// run authored by someone other than the viewer. The owner marker is added
// when the author is the configured owner identity and owner display is
// not suppressed.
func ShowDisplayName(prev, cur *models.Message, viewer, owner string, suppressOwner bool) NameDisplay {
	if cur == nil || cur.Author == viewer {
		return NameDisplay{}
	}
	if !IsFirstOfGroup(prev, cur) {
		return NameDisplay{}
	}
	return NameDisplay{
		Show:        true,
		OwnerMarker: owner != "" && cur.Author == owner && !suppressOwner,
	}
}
