package tgbot

import "sync"

// messageTracker remembers the last bot message per chat and category so the
// stale one can be deleted before a replacement is sent. Pure anti-spam
// polish; losing this state on restart is harmless.
type messageTracker struct {
	mu   sync.Mutex
	last map[trackKey]int
}

type trackKey struct {
	chatID   int64
	category string
}

func newMessageTracker() *messageTracker {
	return &messageTracker{last: make(map[trackKey]int)}
}

// Last returns the previous message id for the chat and category.
func (t *messageTracker) Last(chatID int64, category string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.last[trackKey{chatID, category}]
	return id, ok
}

// Remember stores the latest message id, replacing the previous one.
func (t *messageTracker) Remember(chatID int64, category string, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last[trackKey{chatID, category}] = messageID
}
