package survey

import "time"

// accumulate adds the time spent on the cursor task to its running total and moves the cursor to nextKey.
// An empty nextKey stops the cursor, e.g. on the submit screen.
func accumulate(s *Session, nextKey string, now time.Time) {
	nowMs := now.UnixMilli()
	if s.CursorTaskKey != "" {
		elapsed := nowMs - s.CursorStartMs
		if elapsed < 0 {
			elapsed = 0
		}
		if s.TaskTimeMs == nil {
			s.TaskTimeMs = map[string]int64{}
		}
		s.TaskTimeMs[s.CursorTaskKey] += elapsed
	}
	s.CursorTaskKey = nextKey
	s.CursorStartMs = 0
	if nextKey != "" {
		s.CursorStartMs = nowMs
	}
}
