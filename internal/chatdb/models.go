// Package chatdb provides read-only access to the macOS Messages database.
package chatdb

import "time"

// Chat is a thread (1:1 or group) in the message store.
type Chat struct {
	ID          int64  `json:"id"`
	GUID        string `json:"guid"`
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name,omitempty"`
	Style       int    `json:"style"`
}

// IsGroup reports whether the chat is a group thread. Style 43 is a group
// chat, 45 a 1:1 thread.
func (c Chat) IsGroup() bool {
	return c.Style == 43
}

// EntryKind classifies a transcript entry.
type EntryKind string

const (
	KindText       EntryKind = "text"
	KindTapback    EntryKind = "tapback"
	KindAttachment EntryKind = "attachment"
	KindGroupEvent EntryKind = "group_event"
)

// Attachment describes a file referenced by a message. Missing is
// determined by a stat at read time, not trusted from the store.
type Attachment struct {
	Path         string `json:"path"`
	MIMEType     string `json:"mime_type,omitempty"`
	TransferName string `json:"transfer_name,omitempty"`
	Missing      bool   `json:"missing"`
}

// Entry is one normalized transcript entry. Timestamp marshals as RFC 3339.
type Entry struct {
	Timestamp   time.Time    `json:"timestamp"`
	Sender      string       `json:"sender"`
	FromMe      bool         `json:"from_me"`
	Kind        EntryKind    `json:"kind"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// DateRange bounds a transcript query. A nil bound is unbounded on that
// side; present bounds are inclusive.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Validate reports ErrInvalidRange when both bounds are set and start is
// after end.
func (r DateRange) Validate() error {
	if r.Start != nil && r.End != nil && r.Start.After(*r.End) {
		return ErrInvalidRange
	}
	return nil
}

// TranscriptOptions controls transcript assembly. When Limit is positive,
// the most recent Limit entries within the range are kept; the result is
// always emitted in ascending chronological order.
type TranscriptOptions struct {
	Range DateRange
	Limit int
}
