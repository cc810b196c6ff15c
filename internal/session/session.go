// Package session keeps the per-chat conversation stage.
package session

import (
	"sync"
)

// Stage is where a chat is in the download conversation.
type Stage int

const (
	// StageNone is implicit: chats without a recorded stage are in it.
	StageNone Stage = iota
	// StageAwaitingDownloadURL means the next text message is treated as a URL.
	StageAwaitingDownloadURL
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageAwaitingDownloadURL:
		return "awaiting_download_url"
	default:
		return "unknown"
	}
}

// Store maps a chat to its single current stage.
type Store interface {
	Get(chatID int64) Stage
	Set(chatID int64, stage Stage)
	Clear(chatID int64)
	Len() int
}

// MemoryStore is a process-lifetime Store. Entries are never evicted.
type MemoryStore struct {
	mu     sync.RWMutex
	stages map[int64]Stage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stages: make(map[int64]Stage)}
}

func (s *MemoryStore) Get(chatID int64) Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stages[chatID]
}

// Set records stage for the chat, replacing any previous one.
// Setting StageNone is the same as Clear.
func (s *MemoryStore) Set(chatID int64, stage Stage) {
	if stage == StageNone {
		s.Clear(chatID)
		return
	}
	s.mu.Lock()
	s.stages[chatID] = stage
	n := len(s.stages)
	s.mu.Unlock()
	setActiveConversations(n)
}

func (s *MemoryStore) Clear(chatID int64) {
	s.mu.Lock()
	delete(s.stages, chatID)
	n := len(s.stages)
	s.mu.Unlock()
	setActiveConversations(n)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stages)
}
