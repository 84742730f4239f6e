// ABOUTME: Helpers for the append-only notifications.md stream: bounded
// ABOUTME: tail reads for the NotificationAwareness middleware.

package blackboard

import (
	"os"
	"strings"
)

// AppendNotification appends one human-readable line to notifications.md
// under exclusive lock, used by the ActivityLogger middleware.
func (s *Store) AppendNotification(line string) error {
	return s.AppendToIndex(NotificationsFile, line)
}

// TailNotifications reads the tail of notifications.md bounded by both a
// maximum line count and a maximum character count, whichever is reached
// first scanning from the end — mirrors the head/tail truncation
// discipline used elsewhere in the tool output sanitizer.
func (s *Store) TailNotifications(maxLines, maxChars int) (string, error) {
	idx, err := s.ReadIndex(NotificationsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", nil
	}
	body := idx.Body
	lines := strings.Split(body, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	tail := strings.Join(lines, "\n")
	if len(tail) > maxChars {
		tail = tail[len(tail)-maxChars:]
	}
	return tail, nil
}
