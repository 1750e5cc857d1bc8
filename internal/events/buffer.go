package events

import "sync"

const defaultBufferSize = 1024

type message struct {
	Kind    string
	Subject string
	Data    []byte
}

// buffer is a bounded FIFO. When full, the oldest message makes room for
// the newest one.
type buffer struct {
	lock  sync.Mutex
	items []message
	start int
	size  int
}

func newBuffer(capacity int) *buffer {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &buffer{items: make([]message, capacity)}
}

// PushBack appends msg and reports whether an older message was dropped.
func (b *buffer) PushBack(msg message) (dropped bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.size == len(b.items) {
		b.start = (b.start + 1) % len(b.items)
		b.size--
		dropped = true
	}
	b.items[(b.start+b.size)%len(b.items)] = msg
	b.size++

	return dropped
}

func (b *buffer) Pop() (message, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.size == 0 {
		return message{}, false
	}
	msg := b.items[b.start]
	b.items[b.start] = message{}
	b.start = (b.start + 1) % len(b.items)
	b.size--
	return msg, true
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}
