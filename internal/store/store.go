// Package store holds the shared forum state: users, the online set, threads
// with their messages, and uploaded attachments. It is the only component
// that mutates this state; every operation validates first and mutates only
// after validation has fully succeeded, atomically with respect to other
// operations on the same thread.
package store

import (
	"sort"
	"sync"

	"github.com/forumd-dev/forumd/internal/domain"
	"github.com/forumd-dev/forumd/internal/errors"
)

// Persister mirrors successful mutations to a backing store. The in-memory
// state is authoritative; persister failures are reported but never applied
// backwards.
type Persister interface {
	SaveUser(user domain.User) error
	SaveThread(thread *domain.Thread) error
	DeleteThread(title domain.ThreadTitle) error
	SaveAttachment(att *domain.Attachment) error
	DeleteAttachment(thread domain.ThreadTitle, name string) error
}

// NopPersister discards all writes. Used in tests and when no data dir is
// configured.
type NopPersister struct{}

func (NopPersister) SaveUser(domain.User) error                        { return nil }
func (NopPersister) SaveThread(*domain.Thread) error                   { return nil }
func (NopPersister) DeleteThread(domain.ThreadTitle) error             { return nil }
func (NopPersister) SaveAttachment(*domain.Attachment) error           { return nil }
func (NopPersister) DeleteAttachment(domain.ThreadTitle, string) error { return nil }

type threadEntry struct {
	mu          sync.Mutex
	removed     bool
	thread      domain.Thread
	attachments map[string]*domain.Attachment
}

// Store is safe for concurrent use. The outer mutex guards the collection
// maps; each thread entry carries its own lock so operations on different
// threads proceed in parallel while operations on the same title serialize.
type Store struct {
	mu      sync.RWMutex
	users   map[domain.Username]domain.User
	online  map[domain.Username]struct{}
	threads map[domain.ThreadTitle]*threadEntry

	persist Persister

	// Recent deduplicates retransmitted mutating requests by request id.
	Recent *ResponseCache
}

func New(persist Persister) *Store {
	if persist == nil {
		persist = NopPersister{}
	}
	return &Store{
		users:   make(map[domain.Username]domain.User),
		online:  make(map[domain.Username]struct{}),
		threads: make(map[domain.ThreadTitle]*threadEntry),
		persist: persist,
		Recent:  NewResponseCache(0, 0),
	}
}

// lockThread finds the entry for title and locks it. The store lock is
// released before returning so unrelated threads stay unblocked.
func (s *Store) lockThread(title domain.ThreadTitle) (*threadEntry, error) {
	s.mu.RLock()
	entry, ok := s.threads[title]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrNoThread
	}
	entry.mu.Lock()
	if entry.removed {
		// Lost the race against RemoveThread.
		entry.mu.Unlock()
		return nil, errors.ErrNoThread
	}
	return entry, nil
}

// CreateThread registers a new empty thread owned by owner. Exactly one of
// any number of racing creators for the same title succeeds.
func (s *Store) CreateThread(title domain.ThreadTitle, owner domain.Username) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[title]; ok {
		return errors.ErrThreadExists
	}
	entry := &threadEntry{
		thread:      domain.Thread{Title: title, Owner: owner},
		attachments: make(map[string]*domain.Attachment),
	}
	s.threads[title] = entry
	return s.persist.SaveThread(&entry.thread)
}

// Threads returns all thread titles, sorted.
func (s *Store) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]string, 0, len(s.threads))
	for title := range s.threads {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// PostMessage appends a message and returns its index (count+1).
func (s *Store) PostMessage(title domain.ThreadTitle, author domain.Username, text string) (int, error) {
	entry, err := s.lockThread(title)
	if err != nil {
		return 0, err
	}
	defer entry.mu.Unlock()

	msg := domain.Message{
		Index:  len(entry.thread.Messages) + 1,
		Author: author,
		Text:   text,
	}
	entry.thread.Messages = append(entry.thread.Messages, msg)
	return msg.Index, s.persist.SaveThread(&entry.thread)
}

// DeleteMessage removes the message at index if caller authored it, then
// renumbers the remaining messages so indices stay dense starting at 1.
func (s *Store) DeleteMessage(title domain.ThreadTitle, caller domain.Username, index int) error {
	entry, err := s.lockThread(title)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	msgs := entry.thread.Messages
	if index < 1 || index > len(msgs) {
		return errors.ErrNoMessage
	}
	if msgs[index-1].Author != caller {
		return errors.ErrForbidden
	}
	msgs = append(msgs[:index-1], msgs[index:]...)
	for i := range msgs {
		msgs[i].Index = i + 1
	}
	entry.thread.Messages = msgs
	return s.persist.SaveThread(&entry.thread)
}

// EditMessage replaces the text of the message at index, author-only.
func (s *Store) EditMessage(title domain.ThreadTitle, caller domain.Username, index int, text string) error {
	entry, err := s.lockThread(title)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	msgs := entry.thread.Messages
	if index < 1 || index > len(msgs) {
		return errors.ErrNoMessage
	}
	if msgs[index-1].Author != caller {
		return errors.ErrForbidden
	}
	msgs[index-1].Text = text
	return s.persist.SaveThread(&entry.thread)
}

// ReadThread returns a copy of the ordered message list.
func (s *Store) ReadThread(title domain.ThreadTitle) ([]domain.Message, error) {
	entry, err := s.lockThread(title)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	msgs := make([]domain.Message, len(entry.thread.Messages))
	copy(msgs, entry.thread.Messages)
	return msgs, nil
}

// RemoveThread deletes the thread, its messages and its attachments,
// owner-only.
func (s *Store) RemoveThread(title domain.ThreadTitle, caller domain.Username) error {
	s.mu.Lock()
	entry, ok := s.threads[title]
	if !ok {
		s.mu.Unlock()
		return errors.ErrNoThread
	}
	entry.mu.Lock()
	if entry.thread.Owner != caller {
		entry.mu.Unlock()
		s.mu.Unlock()
		return errors.ErrForbidden
	}
	entry.removed = true
	delete(s.threads, title)
	attachments := entry.attachments
	entry.mu.Unlock()
	s.mu.Unlock()

	var err error
	for name := range attachments {
		if e := s.persist.DeleteAttachment(title, name); e != nil && err == nil {
			err = e
		}
	}
	if e := s.persist.DeleteThread(title); e != nil && err == nil {
		err = e
	}
	return err
}

// PutAttachment stores the uploaded bytes under (title, name). The thread
// must exist; an existing attachment under the same key is replaced.
func (s *Store) PutAttachment(title domain.ThreadTitle, name string, data []byte) error {
	entry, err := s.lockThread(title)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	att := &domain.Attachment{
		Thread: title,
		Name:   name,
		Size:   int64(len(data)),
		Data:   data,
	}
	entry.attachments[name] = att
	return s.persist.SaveAttachment(att)
}

// Attachment returns the stored attachment for (title, name).
func (s *Store) Attachment(title domain.ThreadTitle, name string) (*domain.Attachment, error) {
	entry, err := s.lockThread(title)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	att, ok := entry.attachments[name]
	if !ok {
		return nil, errors.ErrFileNotFound
	}
	cp := *att
	cp.Data = append([]byte(nil), att.Data...)
	return &cp, nil
}

// HasThread reports thread existence without locking the entry.
func (s *Store) HasThread(title domain.ThreadTitle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[title]
	return ok
}

// User returns the registered user by name.
func (s *Store) User(name domain.Username) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	return u, ok
}

// Register adds a new user and persists the credential. Registering an
// existing name overwrites nothing and fails.
func (s *Store) Register(user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Name]; ok {
		return errors.ErrUserExists
	}
	s.users[user.Name] = user
	return s.persist.SaveUser(user)
}

// Bootstrap seeds the user registry from a pre-loaded credentials list
// without re-persisting.
func (s *Store) Bootstrap(users []domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.Name] = u
	}
}

// MarkOnline adds name to the online set; a name may be online at most once.
func (s *Store) MarkOnline(name domain.Username) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.online[name]; ok {
		return errors.ErrAlreadyOnline
	}
	s.online[name] = struct{}{}
	return nil
}

// MarkOffline removes name from the online set.
func (s *Store) MarkOffline(name domain.Username) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.online[name]; !ok {
		return errors.ErrNotOnline
	}
	delete(s.online, name)
	return nil
}

func (s *Store) IsOnline(name domain.Username) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[name]
	return ok
}

// Counts returns thread and online-user counts for the ops status endpoint.
func (s *Store) Counts() (threads, online int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads), len(s.online)
}
