package chatdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Transcript assembles a normalized transcript for the given chats.
// Messages from all chats are merged into one chronological sequence,
// ordered ascending by timestamp with the store's row order breaking ties.
// When opts.Limit is positive, the most recent Limit entries are kept and
// the result is still emitted ascending.
func (s *Store) Transcript(ctx context.Context, chatIDs []int64, opts TranscriptOptions) ([]Entry, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	if len(chatIDs) == 0 {
		return []Entry{}, nil
	}

	placeholders := make([]string, len(chatIDs))
	args := make([]interface{}, len(chatIDs))
	for i, id := range chatIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	conditions := []string{fmt.Sprintf("cmj.chat_id IN (%s)", strings.Join(placeholders, ","))}
	if opts.Range.Start != nil {
		conditions = append(conditions, dateExpr+" >= ?")
		args = append(args, toAppleNanos(*opts.Range.Start))
	}
	if opts.Range.End != nil {
		conditions = append(conditions, dateExpr+" <= ?")
		args = append(args, toAppleNanos(*opts.Range.End))
	}

	// With a limit, take the newest rows first and reverse afterwards so
	// truncation keeps the most recent entries within the range.
	order := dateExpr + " ASC, m.ROWID ASC"
	limitClause := ""
	if opts.Limit > 0 {
		order = dateExpr + " DESC, m.ROWID DESC"
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}

	query := fmt.Sprintf(`
		SELECT m.ROWID, %s, COALESCE(m.text, ''), m.is_from_me, COALESCE(h.id, ''),
			m.item_type, m.group_action_type, m.associated_message_type,
			COALESCE(m.group_title, ''), m.cache_has_attachments
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE %s
		ORDER BY %s
		%s
	`, dateExpr, strings.Join(conditions, " AND "), order, limitClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	type rawRow struct {
		rowID     int64
		entry     Entry
		hasAttach bool
	}

	var raw []rawRow
	for rows.Next() {
		var (
			rowID, dateNanos             int64
			text, sender, groupTitle     string
			fromMe, hasAttach            bool
			itemType, groupAction, assoc int
		)
		if err := rows.Scan(&rowID, &dateNanos, &text, &fromMe, &sender,
			&itemType, &groupAction, &assoc, &groupTitle, &hasAttach); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		entry := Entry{
			Timestamp: fromAppleTime(dateNanos),
			Sender:    senderDisplay(sender, fromMe),
			FromMe:    fromMe,
		}
		entry.Kind, entry.Text = classify(itemType, groupAction, assoc, hasAttach, text, groupTitle)

		raw = append(raw, rawRow{rowID: rowID, entry: entry, hasAttach: hasAttach})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if opts.Limit > 0 {
		// Rows came back newest-first; restore ascending order.
		for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
			raw[i], raw[j] = raw[j], raw[i]
		}
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		if r.hasAttach {
			attachments, err := s.attachmentsForMessage(ctx, r.rowID)
			if err != nil {
				return nil, err
			}
			r.entry.Attachments = attachments
		}
		entries = append(entries, r.entry)
	}

	return entries, nil
}

// attachmentsForMessage fetches attachment metadata for one message and
// re-checks file existence at read time. A missing file degrades to
// Missing: true; it never fails the transcript.
func (s *Store) attachmentsForMessage(ctx context.Context, messageID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(a.filename, ''), COALESCE(a.mime_type, ''), COALESCE(a.transfer_name, '')
		FROM message_attachment_join maj
		JOIN attachment a ON a.ROWID = maj.attachment_id
		WHERE maj.message_id = ?
		ORDER BY a.ROWID ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.Path, &att.MIMEType, &att.TransferName); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		att.Path = expandHome(att.Path)
		if att.Path == "" {
			att.Missing = true
		} else if _, err := os.Stat(att.Path); err != nil {
			att.Missing = true
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

// expandHome resolves the "~/" prefix the store uses for attachment paths.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func senderDisplay(handleID string, fromMe bool) string {
	if fromMe {
		return "me"
	}
	return handleID
}

// classify maps raw row flags to an entry kind and its display text.
// Tapbacks and group events get synthesized text so the transcript stays
// chronologically complete.
func classify(itemType, groupAction, assoc int, hasAttach bool, text, groupTitle string) (EntryKind, string) {
	switch {
	case assoc >= 2000 && assoc < 4000:
		return KindTapback, tapbackSummary(assoc)
	case itemType == 1:
		if groupAction == 1 {
			return KindGroupEvent, "Removed a participant from the group"
		}
		return KindGroupEvent, "Added a participant to the group"
	case itemType == 2:
		return KindGroupEvent, fmt.Sprintf("Renamed the group to %q", groupTitle)
	case itemType == 3:
		return KindGroupEvent, "Left the group"
	case hasAttach && text == "":
		return KindAttachment, ""
	default:
		return KindText, text
	}
}

// tapbackSummary names a reaction row. 2000-2005 add a tapback, 3000-3005
// remove one.
func tapbackSummary(assoc int) string {
	names := map[int]string{
		0: "Loved",
		1: "Liked",
		2: "Disliked",
		3: "Laughed at",
		4: "Emphasized",
		5: "Questioned",
	}

	switch {
	case assoc >= 2000 && assoc <= 2005:
		return names[assoc-2000] + " a message"
	case assoc >= 3000 && assoc <= 3005:
		return "Removed a " + strings.ToLower(names[assoc-3000]) + " tapback"
	default:
		return "Reacted to a message"
	}
}
