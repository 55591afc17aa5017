package context

import (
	"slices"
	"strconv"
	"sync"
)

// DefaultMaxMessages is the window used when a Store is built without one.
const DefaultMaxMessages = 10

// UserID identifies the owner of a conversation history.
type UserID string

// UserIDFromInt converts a numeric platform user id.
func UserIDFromInt(id int64) UserID {
	return UserID(strconv.FormatInt(id, 10))
}

type history struct {
	messages []Message
	turn     sync.Mutex
}

// Store keeps one bounded, role-tagged history per user for the lifetime of
// the process.
//
// mu guards the map and every history's messages for the duration of a single
// call only. Round-trips are serialised per user through Lock, so a slow
// completion for one user never blocks another.
type Store struct {
	system     string
	compressor Compressor

	mu        sync.Mutex
	histories map[UserID]*history
}

// NewStore creates a Store that seeds every new history with systemPrompt
// and applies compressor after each assistant reply. A nil compressor, or a
// Window without a size, keeps the last DefaultMaxMessages entries.
func NewStore(systemPrompt string, compressor Compressor) *Store {
	switch c := compressor.(type) {
	case nil:
		compressor = Window{MaxMessages: DefaultMaxMessages, PinSystem: true}
	case Window:
		if c.MaxMessages <= 0 {
			c.MaxMessages = DefaultMaxMessages
			compressor = c
		}
	}
	return &Store{
		system:     systemPrompt,
		compressor: compressor,
		histories:  make(map[UserID]*history),
	}
}

// SystemPrompt returns the seed inserted at the head of new histories.
func (s *Store) SystemPrompt() string {
	return s.system
}

// Compressor returns the truncation policy applied after each reply.
func (s *Store) Compressor() Compressor {
	return s.compressor
}

// entryLocked returns the history for id, creating it if needed.
// Callers must hold s.mu.
func (s *Store) entryLocked(id UserID) *history {
	h, ok := s.histories[id]
	if !ok {
		h = &history{}
		s.histories[id] = h
	}
	return h
}

// GetOrCreateHistory returns a copy of id's history. A new history is empty;
// the seed is only inserted by the first AppendUserMessage.
func (s *Store) GetOrCreateHistory(id UserID) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entryLocked(id).messages)
}

// AppendUserMessage seeds an empty history with the system prompt, appends a
// user entry and returns the full sequence to send to the model. It never
// truncates.
func (s *Store) AppendUserMessage(id UserID, text string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.entryLocked(id)
	if len(h.messages) == 0 {
		h.messages = append(h.messages, Message{Role: RoleSystem, Content: s.system})
	}
	h.messages = append(h.messages, Message{Role: RoleUser, Content: text})
	return slices.Clone(h.messages)
}

// AppendAssistantReply appends an assistant entry and then truncates the
// history with the store's compressor.
func (s *Store) AppendAssistantReply(id UserID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.entryLocked(id)
	h.messages = append(h.messages, Message{Role: RoleAssistant, Content: text})
	if compressed := s.compressor.Compress(h.messages); len(compressed) != len(h.messages) {
		h.messages = slices.Clone(compressed)
	}
}

// Lock acquires id's round-trip lock and returns the matching unlock. Hold it
// from AppendUserMessage through AppendAssistantReply so two in-flight
// requests from the same user cannot interleave.
func (s *Store) Lock(id UserID) (unlock func()) {
	s.mu.Lock()
	h := s.entryLocked(id)
	s.mu.Unlock()

	h.turn.Lock()
	return h.turn.Unlock
}

// Reset empties id's history; the next user message reseeds it.
func (s *Store) Reset(id UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[id]; ok {
		h.messages = nil
	}
}

// Len reports the number of stored entries for id.
func (s *Store) Len(id UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[id]; ok {
		return len(h.messages)
	}
	return 0
}

// Users reports how many users have a history entry.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}
