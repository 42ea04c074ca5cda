package chatdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/hannesrudolph/imessage-query-mcp/internal/identity"
)

// ResolveChats maps a canonical identity to the chats it participates in.
// Zero matches is not an error: callers must treat an empty slice as a
// valid, reportable outcome. Multiple matches surface ambiguity to the
// caller rather than silently picking one.
func (s *Store) ResolveChats(ctx context.Context, id identity.Canonical, region string) ([]Chat, error) {
	switch id.Kind {
	case identity.KindPhone:
		return s.chatsForPhone(ctx, id.Value, region)
	case identity.KindEmail:
		return s.chatsForEmail(ctx, id.Value)
	case identity.KindGroup:
		return s.chatsForGroupName(ctx, id.Value)
	default:
		return nil, fmt.Errorf("unknown identity kind %q", id.Kind)
	}
}

// chatsForPhone matches handles tolerantly: the store may hold legacy
// non-E.164 formats, so every phone-shaped handle identifier is normalized
// with the same parser before comparing canonical strings.
func (s *Store) chatsForPhone(ctx context.Context, e164, region string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ROWID, id FROM handle`)
	if err != nil {
		return nil, fmt.Errorf("query handles: %w", err)
	}
	defer rows.Close()

	var handleIDs []int64
	for rows.Next() {
		var rowID int64
		var raw string
		if err := rows.Scan(&rowID, &raw); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		if strings.Contains(raw, "@") {
			continue
		}
		canonical, err := identity.NormalizePhone(raw, region)
		if err != nil {
			// Legacy or malformed handle identifiers are skipped, not fatal.
			continue
		}
		if canonical == e164 {
			handleIDs = append(handleIDs, rowID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handles: %w", err)
	}

	return s.chatsForHandles(ctx, handleIDs)
}

func (s *Store) chatsForEmail(ctx context.Context, email string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ROWID FROM handle WHERE LOWER(id) = ?`, email)
	if err != nil {
		return nil, fmt.Errorf("query handles: %w", err)
	}
	defer rows.Close()

	var handleIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		handleIDs = append(handleIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handles: %w", err)
	}

	return s.chatsForHandles(ctx, handleIDs)
}

// chatsForHandles returns the distinct chats any of the handles belong to.
func (s *Store) chatsForHandles(ctx context.Context, handleIDs []int64) ([]Chat, error) {
	if len(handleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(handleIDs))
	args := make([]interface{}, len(handleIDs))
	for i, id := range handleIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT c.ROWID, c.guid, COALESCE(c.chat_identifier, ''), COALESCE(c.display_name, ''), c.style
		FROM chat c
		JOIN chat_handle_join chj ON chj.chat_id = c.ROWID
		WHERE chj.handle_id IN (%s)
		ORDER BY c.ROWID ASC
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats for handles: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.GUID, &c.Identifier, &c.DisplayName, &c.Style); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// chatsForGroupName matches group display names: exact match first, then a
// case-insensitive substring fallback when nothing matched exactly.
func (s *Store) chatsForGroupName(ctx context.Context, name string) ([]Chat, error) {
	chats, err := s.queryChatsByName(ctx,
		`SELECT ROWID, guid, COALESCE(chat_identifier, ''), COALESCE(display_name, ''), style
		 FROM chat WHERE display_name = ? ORDER BY ROWID ASC`, name)
	if err != nil {
		return nil, err
	}
	if len(chats) > 0 {
		return chats, nil
	}

	return s.queryChatsByName(ctx,
		`SELECT ROWID, guid, COALESCE(chat_identifier, ''), COALESCE(display_name, ''), style
		 FROM chat WHERE LOWER(display_name) LIKE '%' || ? || '%' ORDER BY ROWID ASC`,
		strings.ToLower(name))
}

func (s *Store) queryChatsByName(ctx context.Context, query, arg string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query chats by name: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.GUID, &c.Identifier, &c.DisplayName, &c.Style); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
