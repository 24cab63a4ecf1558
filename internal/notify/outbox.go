package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

// MemoryOutbox keeps the last message per recipient instead of sending it. Dev only
// (DEV_OUTBOX=true); config refuses it in production.
type MemoryOutbox struct {
	mu   sync.RWMutex
	m    map[string]outboxEntry
	nowF func() time.Time
}

type outboxEntry struct {
	msg    Message
	sentAt time.Time
}

// NewMemoryOutbox returns an empty outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{m: make(map[string]outboxEntry), nowF: time.Now}
}

// Send stores msg for its recipient, replacing any previous message.
func (o *MemoryOutbox) Send(ctx context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[msg.To] = outboxEntry{msg: msg, sentAt: o.nowF()}
	log.Printf("notify: dev outbox stored %q for %s", msg.Subject, msg.To)
	return nil
}

// Last returns the most recent message for to.
func (o *MemoryOutbox) Last(ctx context.Context, to string) (Message, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.m[to]
	return e.msg, ok
}

// Len returns the number of recipients with a stored message.
func (o *MemoryOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.m)
}
