package mcpserver

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hannesrudolph/imessage-query-mcp/internal/chatdb"
	"github.com/hannesrudolph/imessage-query-mcp/internal/config"
	"github.com/hannesrudolph/imessage-query-mcp/internal/identity"
)

const testSchema = `
	CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT NOT NULL, service TEXT NOT NULL DEFAULT 'iMessage');
	CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, guid TEXT NOT NULL, chat_identifier TEXT, display_name TEXT, style INTEGER NOT NULL DEFAULT 45);
	CREATE TABLE chat_handle_join (chat_id INTEGER NOT NULL, handle_id INTEGER NOT NULL);
	CREATE TABLE message (
		ROWID INTEGER PRIMARY KEY, guid TEXT, text TEXT, handle_id INTEGER, date INTEGER NOT NULL,
		is_from_me INTEGER NOT NULL DEFAULT 0, item_type INTEGER NOT NULL DEFAULT 0,
		group_action_type INTEGER NOT NULL DEFAULT 0, associated_message_type INTEGER NOT NULL DEFAULT 0,
		group_title TEXT, cache_has_attachments INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE chat_message_join (chat_id INTEGER NOT NULL, message_id INTEGER NOT NULL, message_date INTEGER);
	CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY, filename TEXT, mime_type TEXT, transfer_name TEXT, total_bytes INTEGER);
	CREATE TABLE message_attachment_join (message_id INTEGER NOT NULL, attachment_id INTEGER NOT NULL);
`

const appleEpochOffset = 978307200

func appleNanos(t time.Time) int64 {
	return (t.Unix()-appleEpochOffset)*1e9 + int64(t.Nanosecond())
}

// newTestServer creates a chat.db file on disk, seeds it via fn, and
// returns a server backed by it.
func newTestServer(t *testing.T, fn func(db *sql.DB)) *Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if fn != nil {
		fn(db)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close seed db: %v", err)
	}

	t.Setenv(config.EnvDBPath, "")
	cfg := &config.Config{DBPath: path}
	mgr := chatdb.NewManager(path)
	t.Cleanup(func() { mgr.Close() })

	return New(cfg, mgr, "test")
}

func seedDirectChat(t *testing.T, db *sql.DB, handle string) (chatID, handleID int64) {
	t.Helper()
	res, err := db.Exec(`INSERT INTO handle (id) VALUES (?)`, handle)
	if err != nil {
		t.Fatalf("insert handle: %v", err)
	}
	handleID, _ = res.LastInsertId()
	res, err = db.Exec(`INSERT INTO chat (guid, chat_identifier, style) VALUES (?, ?, 45)`, "iMessage;-;"+handle, handle)
	if err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	chatID, _ = res.LastInsertId()
	if _, err := db.Exec(`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)`, chatID, handleID); err != nil {
		t.Fatalf("join chat handle: %v", err)
	}
	return chatID, handleID
}

func seedMessage(t *testing.T, db *sql.DB, chatID, handleID int64, text string, sent time.Time) {
	t.Helper()
	res, err := db.Exec(`INSERT INTO message (text, handle_id, date) VALUES (?, ?, ?)`,
		text, handleID, appleNanos(sent))
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	msgID, _ := res.LastInsertId()
	if _, err := db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)`, chatID, msgID); err != nil {
		t.Fatalf("join chat message: %v", err)
	}
}

func TestNewDoesNotAnnounceSession(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	// One-off CLI commands construct a server per invocation; only the
	// serving path should emit the session line.
	newTestServer(t, nil)

	if buf.Len() != 0 {
		t.Errorf("construction logged %q, want silence until serving", buf.String())
	}
}

func TestGetChatTranscriptRoundTrip(t *testing.T) {
	sent := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	srv := newTestServer(t, func(db *sql.DB) {
		chatID, handleID := seedDirectChat(t, db, "+12125550123")
		seedMessage(t, db, chatID, handleID, "see you at noon", sent)
	})

	result, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact:   "(212) 555-0123",
		StartDate: "2024-03-15",
		EndDate:   "2024-03-15",
	})
	if err != nil {
		t.Fatalf("GetChatTranscript: %v", err)
	}

	if result.TotalCount != 1 || len(result.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(result.Messages))
	}
	if result.Messages[0].Text != "see you at noon" {
		t.Errorf("Text = %q, want the message verbatim", result.Messages[0].Text)
	}
	if !result.Messages[0].Timestamp.Equal(sent) {
		t.Errorf("Timestamp = %v, want %v", result.Messages[0].Timestamp, sent)
	}

	// The same message is absent when the range excludes it.
	result, err = srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact:   "+12125550123",
		StartDate: "2024-03-16",
		EndDate:   "2024-03-17",
	})
	if err != nil {
		t.Fatalf("GetChatTranscript: %v", err)
	}
	if result.TotalCount != 0 {
		t.Errorf("got %d messages in excluding range, want 0", result.TotalCount)
	}
}

func TestGetChatTranscriptUnknownContact(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact: "+1 212-555-0199",
	})
	if err != nil {
		t.Fatalf("GetChatTranscript: %v", err)
	}
	if result.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0", result.TotalCount)
	}
	if result.Messages == nil {
		t.Error("Messages must be an empty list, not null")
	}
}

func TestGetChatTranscriptInvalidPhone(t *testing.T) {
	srv := newTestServer(t, nil)

	_, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{Contact: "+1"})
	if !errors.Is(err, identity.ErrInvalidPhoneNumber) {
		t.Errorf("error = %v, want ErrInvalidPhoneNumber", err)
	}
}

func TestGetChatTranscriptInvalidRange(t *testing.T) {
	srv := newTestServer(t, func(db *sql.DB) {
		seedDirectChat(t, db, "+12125550123")
	})

	_, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact:   "+12125550123",
		StartDate: "2024-03-20",
		EndDate:   "2024-03-10",
	})
	if !errors.Is(err, chatdb.ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestGetChatTranscriptInvalidRangeUnknownContact(t *testing.T) {
	srv := newTestServer(t, nil)

	// The range must be rejected even when the contact resolves to no
	// chats; the empty-result shortcut must not mask it.
	_, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact:   "+12125550123",
		StartDate: "2024-03-20",
		EndDate:   "2024-03-10",
	})
	if !errors.Is(err, chatdb.ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestGetChatTranscriptMissingDatabase(t *testing.T) {
	t.Setenv(config.EnvDBPath, "")
	path := filepath.Join(t.TempDir(), "absent.db")
	cfg := &config.Config{DBPath: path}
	srv := New(cfg, chatdb.NewManager(path), "test")

	_, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{Contact: "+12125550123"})
	if !errors.Is(err, chatdb.ErrDatabaseNotFound) {
		t.Errorf("error = %v, want ErrDatabaseNotFound", err)
	}
}

func TestGetChatTranscriptAggregatesAmbiguousGroups(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	srv := newTestServer(t, func(db *sql.DB) {
		res, _ := db.Exec(`INSERT INTO chat (guid, chat_identifier, display_name, style) VALUES ('g1', 'g1', 'Book Club', 43)`)
		first, _ := res.LastInsertId()
		res, _ = db.Exec(`INSERT INTO chat (guid, chat_identifier, display_name, style) VALUES ('g2', 'g2', 'Book Club', 43)`)
		second, _ := res.LastInsertId()

		res, _ = db.Exec(`INSERT INTO handle (id) VALUES ('+12125550123')`)
		handleID, _ := res.LastInsertId()

		seedMessage(t, db, first, handleID, "from the first thread", base)
		seedMessage(t, db, second, handleID, "from the second thread", base.Add(time.Minute))
		seedMessage(t, db, first, handleID, "back to the first", base.Add(2*time.Minute))
	})

	result, err := srv.GetChatTranscript(context.Background(), TranscriptRequest{
		Contact:   "Book Club",
		StartDate: "2024-03-01",
		EndDate:   "2024-03-01",
	})
	if err != nil {
		t.Fatalf("GetChatTranscript: %v", err)
	}

	if len(result.Chats) != 2 {
		t.Errorf("got %d matched chats, want 2", len(result.Chats))
	}
	if result.TotalCount != 3 {
		t.Fatalf("got %d messages, want 3 interleaved", result.TotalCount)
	}
	for i, want := range []string{"from the first thread", "from the second thread", "back to the first"} {
		if result.Messages[i].Text != want {
			t.Errorf("Messages[%d].Text = %q, want %q", i, result.Messages[i].Text, want)
		}
	}
}

func TestListChatsWithAndWithoutFilter(t *testing.T) {
	srv := newTestServer(t, func(db *sql.DB) {
		seedDirectChat(t, db, "+12125550123")
		db.Exec(`INSERT INTO chat (guid, chat_identifier, display_name, style) VALUES ('g1', 'g1', 'Book Club', 43)`)
	})

	all, err := srv.ListChats(context.Background(), "")
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d chats, want 2", len(all))
	}

	filtered, err := srv.ListChats(context.Background(), "Book Club")
	if err != nil {
		t.Fatalf("ListChats filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].DisplayName != "Book Club" {
		t.Errorf("filtered = %v, want just the group", filtered)
	}
}

func TestParseRangeDefaultWindow(t *testing.T) {
	r, err := parseRange("", "")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if r.Start == nil || r.End == nil {
		t.Fatal("default window must bound both sides")
	}
	if got := r.End.Sub(*r.Start); got != defaultWindow {
		t.Errorf("window = %v, want %v", got, defaultWindow)
	}
}

func TestParseRangeEndOfDay(t *testing.T) {
	r, err := parseRange("2024-03-01", "2024-03-01")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if r.Start.Hour() != 0 {
		t.Errorf("start = %v, want midnight", r.Start)
	}
	// A date-only end bound is inclusive of its whole day.
	if r.End.Hour() != 23 || r.End.Minute() != 59 {
		t.Errorf("end = %v, want end of day", r.End)
	}
}

func TestParseRangeSingleBound(t *testing.T) {
	r, err := parseRange("2024-03-01", "")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if r.Start == nil || r.End != nil {
		t.Errorf("range = %+v, want start-only", r)
	}
}

func TestParseRangeRFC3339(t *testing.T) {
	r, err := parseRange("2024-03-01T09:30:00Z", "2024-03-01T17:00:00Z")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if r.Start.Hour() != 9 || r.End.Hour() != 17 {
		t.Errorf("range = [%v, %v], want exact timestamps", r.Start, r.End)
	}
}

func TestParseRangeRejectsGarbage(t *testing.T) {
	if _, err := parseRange("March 1st", ""); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
