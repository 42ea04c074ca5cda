package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/hannesrudolph/imessage-query-mcp/internal/chatdb"
	"github.com/hannesrudolph/imessage-query-mcp/internal/identity"
)

// defaultWindow is applied when neither date bound is supplied, matching
// the behavior MCP clients already rely on.
const defaultWindow = 7 * 24 * time.Hour

// TranscriptRequest carries decoded get_chat_transcript arguments.
type TranscriptRequest struct {
	Contact   string
	StartDate string
	EndDate   string
	Limit     int
}

// TranscriptResult is the tool payload. An unknown contact produces an
// empty Messages list, not an error, so callers can distinguish "no
// messages" from failure.
type TranscriptResult struct {
	Messages   []chatdb.Entry `json:"messages"`
	TotalCount int            `json:"total_count"`
	Chats      []chatdb.Chat  `json:"chats,omitempty"`
}

// GetChatTranscript resolves the contact, queries every matched chat, and
// returns one merged chronological transcript.
func (s *Server) GetChatTranscript(ctx context.Context, req TranscriptRequest) (*TranscriptResult, error) {
	canonical, err := identity.Normalize(req.Contact, s.cfg.Region())
	if err != nil {
		return nil, err
	}

	dateRange, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if err := dateRange.Validate(); err != nil {
		return nil, err
	}

	store, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}

	chats, err := store.ResolveChats(ctx, canonical, s.cfg.Region())
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return &TranscriptResult{Messages: []chatdb.Entry{}}, nil
	}

	chatIDs := make([]int64, len(chats))
	for i, c := range chats {
		chatIDs[i] = c.ID
	}

	entries, err := store.Transcript(ctx, chatIDs, chatdb.TranscriptOptions{
		Range: dateRange,
		Limit: req.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &TranscriptResult{
		Messages:   entries,
		TotalCount: len(entries),
		Chats:      chats,
	}, nil
}

// ListChats enumerates chats, optionally narrowed to a contact reference.
func (s *Server) ListChats(ctx context.Context, contact string) ([]chatdb.Chat, error) {
	store, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}

	if contact == "" {
		return store.ListChats(ctx)
	}

	canonical, err := identity.Normalize(contact, s.cfg.Region())
	if err != nil {
		return nil, err
	}
	return store.ResolveChats(ctx, canonical, s.cfg.Region())
}

// parseRange decodes the tool's date arguments. When both are absent the
// default window applies; a single bound leaves the other side unbounded.
func parseRange(startDate, endDate string) (chatdb.DateRange, error) {
	if startDate == "" && endDate == "" {
		end := time.Now().UTC()
		start := end.Add(-defaultWindow)
		return chatdb.DateRange{Start: &start, End: &end}, nil
	}

	var r chatdb.DateRange
	if startDate != "" {
		t, err := parseDate(startDate, false)
		if err != nil {
			return chatdb.DateRange{}, fmt.Errorf("invalid start_date %q: %w", startDate, err)
		}
		r.Start = &t
	}
	if endDate != "" {
		t, err := parseDate(endDate, true)
		if err != nil {
			return chatdb.DateRange{}, fmt.Errorf("invalid end_date %q: %w", endDate, err)
		}
		r.End = &t
	}
	return r, nil
}

// parseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp. A date-only
// end bound covers its whole day so the bound stays inclusive.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Nanosecond), nil
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
