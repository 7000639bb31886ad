// Package fs is the log-structured file backing behind the in-memory store.
// It persists the shapes the rest of the system expects on disk: a
// credentials file of "username credential" lines, one text file per thread
// (owner on the first line, then "index author: content" lines) and one blob
// per attachment keyed by "title-name".
package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forumd-dev/forumd/internal/domain"
	"github.com/forumd-dev/forumd/internal/store"
)

type Storage struct {
	rootPath        string
	credentialsPath string
}

// Ensure Storage implements the persister interface at compile time.
var _ store.Persister = (*Storage)(nil)

func New(rootPath, credentialsPath string) (*Storage, error) {
	// filepath.Clean to prevent "data/../" style roots.
	p := filepath.Clean(rootPath)
	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", p, err)
	}
	return &Storage{rootPath: p, credentialsPath: credentialsPath}, nil
}

// safeName flattens a user-supplied name into a single path element so
// thread titles and file names cannot traverse out of the root.
func safeName(name string) string {
	return filepath.Base(filepath.Clean(name))
}

func (s *Storage) threadPath(title domain.ThreadTitle) string {
	return filepath.Join(s.rootPath, safeName(title))
}

func (s *Storage) attachmentPath(title domain.ThreadTitle, name string) string {
	return filepath.Join(s.rootPath, safeName(domain.AttachmentKey(title, name)))
}

// SaveUser appends one credentials line.
func (s *Storage) SaveUser(user domain.User) error {
	f, err := os.OpenFile(s.credentialsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", user.Name, user.Credential); err != nil {
		return fmt.Errorf("failed to append credentials: %w", err)
	}
	return nil
}

// LoadUsers reads the credentials bootstrap file. A missing file is an empty
// registry, not an error.
func (s *Storage) LoadUsers() ([]domain.User, error) {
	f, err := os.Open(s.credentialsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()

	var users []domain.User
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, credential, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed credentials line %q", line)
		}
		users = append(users, domain.User{Name: name, Credential: credential})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return users, nil
}

// SaveThread rewrites the whole thread file. Message deletion renumbers the
// tail, so an append-only log would drift from the in-memory state.
func (s *Storage) SaveThread(thread *domain.Thread) error {
	var b strings.Builder
	b.WriteString(thread.Owner)
	b.WriteByte('\n')
	for _, msg := range thread.Messages {
		b.WriteString(msg.Line())
		b.WriteByte('\n')
	}

	tmp := s.threadPath(thread.Title) + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write thread file: %w", err)
	}
	if err := os.Rename(tmp, s.threadPath(thread.Title)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace thread file: %w", err)
	}
	return nil
}

func (s *Storage) DeleteThread(title domain.ThreadTitle) error {
	err := os.Remove(s.threadPath(title))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}
	return nil
}

func (s *Storage) SaveAttachment(att *domain.Attachment) error {
	if err := os.WriteFile(s.attachmentPath(att.Thread, att.Name), att.Data, 0644); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return nil
}

func (s *Storage) DeleteAttachment(thread domain.ThreadTitle, name string) error {
	err := os.Remove(s.attachmentPath(thread, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
