// Package domain holds the forum's core types, shared by every layer.
package domain

import "fmt"

type (
	Username    = string
	ThreadTitle = string
)

// User is a registered forum member. Credential is either a bcrypt hash
// (registered through the server) or a plaintext password inherited from a
// bootstrap credentials file.
type User struct {
	Name       Username
	Credential string
}

// Message is one post in a thread. Indices are dense and 1-based; deleting a
// message renumbers the ones after it.
type Message struct {
	Index  int
	Author Username
	Text   string
}

// Line renders the canonical wire and file form of a message.
func (m Message) Line() string {
	return fmt.Sprintf("%d %s: %s", m.Index, m.Author, m.Text)
}

type Thread struct {
	Title    ThreadTitle
	Owner    Username
	Messages []Message
}

// Attachment is a file uploaded into a thread. Data is opaque; Size is the
// authoritative byte count advertised on download.
type Attachment struct {
	Thread ThreadTitle
	Name   string
	Size   int64
	Data   []byte
}

// Key returns the storage key for the attachment.
func (a *Attachment) Key() string {
	return AttachmentKey(a.Thread, a.Name)
}

// AttachmentKey combines thread title and file name into the flat key used
// both in memory and on disk.
func AttachmentKey(thread ThreadTitle, name string) string {
	return thread + "-" + name
}
