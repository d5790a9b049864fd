package models

import "time"

// MessageKind is the closed set of wire message types. Every switch over
// MessageKind in this module lists all members so adding a kind is a
// compile-visible change across codec, builder and pipeline.
type MessageKind string

const (
	KindText                   MessageKind = "TEXT"
	KindEncryptedText          MessageKind = "ENCRYPTED_TEXT"
	KindSystem                 MessageKind = "SYSTEM"
	KindDeleted                MessageKind = "DELETED"
	KindCardView               MessageKind = "CARD_VIEW"
	KindMedia                  MessageKind = "MEDIA"
	KindEncryptedMedia         MessageKind = "ENCRYPTED_MEDIA"
	KindMediaWithText          MessageKind = "MEDIA_WITH_TEXT"
	KindMediaWithEncryptedText MessageKind = "MEDIA_WITH_ENCRYPTED_TEXT"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindEncryptedText, KindSystem, KindDeleted, KindCardView,
		KindMedia, KindEncryptedMedia, KindMediaWithText, KindMediaWithEncryptedText:
		return true
	}
	return false
}

// HasMedia reports whether messages of this kind carry media assets.
func (k MessageKind) HasMedia() bool {
	switch k {
	case KindMedia, KindEncryptedMedia, KindMediaWithText, KindMediaWithEncryptedText:
		return true
	case KindText, KindEncryptedText, KindSystem, KindDeleted, KindCardView:
		return false
	}
	return false
}

// Encrypted reports whether the content of this kind is ciphertext.
func (k MessageKind) Encrypted() bool {
	switch k {
	case KindEncryptedText, KindEncryptedMedia, KindMediaWithEncryptedText:
		return true
	case KindText, KindSystem, KindDeleted, KindCardView, KindMedia, KindMediaWithText:
		return false
	}
	return false
}

// Message is one chat item. UUID is client-assigned at creation and is the
// only identity that survives resends; ID and SequenceID exist only once the
// server has persisted the message.
type Message struct {
	UUID       string      `json:"uuid"`
	ID         string      `json:"id,omitempty"`
	SequenceID int64       `json:"sequence_id,omitempty"`
	ChannelID  string      `json:"channel_id"`
	Author     string      `json:"author"`
	Kind       MessageKind `json:"type"`
	Content    string      `json:"content"`

	Delivered bool `json:"delivered,omitempty"`
	Errored   bool `json:"errored,omitempty"`
	Deleted   bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// ParsedContent is the decoded/decrypted plaintext, nil when decoding
	// failed or has not run. Derived client-side, never sent on the wire.
	ParsedContent *string `json:"-"`
}

// InFlight reports whether the message awaits server confirmation.
func (m *Message) InFlight() bool {
	return !m.Delivered && !m.Errored
}

// ResendMeta rides along a retry so the send path can suppress the duplicate
// optimistic insert and keep the original message UUID.
type ResendMeta struct {
	Resending bool
	UUID      string
}
