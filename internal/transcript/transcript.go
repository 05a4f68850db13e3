package transcript

import (
	"time"

	"github.com/google/uuid"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
)

// Entry is a stored transcript line: a reducer entry plus the identity
// and receipt time the store stamps on it.
type Entry struct {
	courtroom.Entry
	ReceivedAt time.Time
}

// Store is the append-only conversation log. Insertion order is receipt
// order; nothing is ever reordered or deduplicated here. The single
// exception to append-only is RetractLast, the optimistic-echo rollback.
//
// Not safe for concurrent use: the session actor owns it.
type Store struct {
	entries []Entry
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append stamps the entry with a fresh id and receipt time and returns
// the stored copy. The id gives redelivered payloads a stable identity
// downstream (the wire protocol itself carries none).
func (s *Store) Append(e courtroom.Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	stored := Entry{Entry: e, ReceivedAt: s.now()}
	s.entries = append(s.entries, stored)
	return stored
}

// RetractLast removes the newest entry iff it carries the given id.
// Used only when a send fails before any server acknowledgement.
func (s *Store) RetractLast(id string) bool {
	if len(s.entries) == 0 {
		return false
	}
	if s.entries[len(s.entries)-1].ID != id {
		return false
	}
	s.entries = s.entries[:len(s.entries)-1]
	return true
}

// All returns a copy; consumers never see the backing slice.
func (s *Store) All() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Len() int { return len(s.entries) }
