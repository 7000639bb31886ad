package service

import (
	"strings"

	"github.com/forumd-dev/forumd/internal/domain"
	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/protocol"
)

// ForumStore is the slice of the store the command layer uses.
type ForumStore interface {
	CreateThread(title domain.ThreadTitle, owner domain.Username) error
	Threads() []string
	PostMessage(title domain.ThreadTitle, author domain.Username, text string) (int, error)
	DeleteMessage(title domain.ThreadTitle, caller domain.Username, index int) error
	EditMessage(title domain.ThreadTitle, caller domain.Username, index int, text string) error
	ReadThread(title domain.ThreadTitle) ([]domain.Message, error)
	RemoveThread(title domain.ThreadTitle, caller domain.Username) error
	PutAttachment(title domain.ThreadTitle, name string, data []byte) error
	Attachment(title domain.ThreadTitle, name string) (*domain.Attachment, error)
	HasThread(title domain.ThreadTitle) bool
}

// Forum applies per-command input validation before touching the store.
// Thread titles and file names become storage keys, so they must be single
// non-empty path elements.
type Forum struct {
	store ForumStore
}

func NewForum(store ForumStore) *Forum {
	return &Forum{store: store}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return errors.New(protocol.StatusFail, "invalid name")
	}
	return nil
}

func (f *Forum) CreateThread(title, owner string) error {
	if err := validateName(title); err != nil {
		return err
	}
	return f.store.CreateThread(title, owner)
}

func (f *Forum) ListThreads() []string {
	return f.store.Threads()
}

func (f *Forum) PostMessage(title, author, text string) (int, error) {
	if err := validateName(title); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, errors.New(protocol.StatusFail, "empty message")
	}
	return f.store.PostMessage(title, author, text)
}

func (f *Forum) DeleteMessage(title, caller string, index int) error {
	if err := validateName(title); err != nil {
		return err
	}
	return f.store.DeleteMessage(title, caller, index)
}

func (f *Forum) EditMessage(title, caller string, index int, text string) error {
	if err := validateName(title); err != nil {
		return err
	}
	if text == "" {
		return errors.New(protocol.StatusFail, "empty message")
	}
	return f.store.EditMessage(title, caller, index, text)
}

func (f *Forum) ReadThread(title string) ([]domain.Message, error) {
	if err := validateName(title); err != nil {
		return nil, err
	}
	return f.store.ReadThread(title)
}

func (f *Forum) RemoveThread(title, caller string) error {
	if err := validateName(title); err != nil {
		return err
	}
	return f.store.RemoveThread(title, caller)
}

func (f *Forum) HasThread(title string) bool {
	if validateName(title) != nil {
		return false
	}
	return f.store.HasThread(title)
}

func (f *Forum) PutAttachment(title, name string, data []byte) error {
	if err := validateName(title); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	return f.store.PutAttachment(title, name, data)
}

func (f *Forum) Attachment(title, name string) (*domain.Attachment, error) {
	if err := validateName(title); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	return f.store.Attachment(title, name)
}
