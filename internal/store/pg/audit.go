package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
)

// AuditStore appends to and reads the immutable audit trail. There are no
// update or delete statements in this file on purpose.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	before, err := marshalSnapshot(entry.BeforeData)
	if err != nil {
		return fmt.Errorf("marshal before data: %w", err)
	}
	after, err := marshalSnapshot(entry.AfterData)
	if err != nil {
		return fmt.Errorf("marshal after data: %w", err)
	}
	// ip_address and user_agent are not-null columns; absent attribution is
	// stored as the empty string.
	return s.db.QueryRowContext(ctx, `
		insert into audit_log (id, actor_id, actor_role, action, entity_type, entity_id, before_data, after_data, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning sequence
	`, entry.ID, entry.ActorID, string(entry.ActorRole), entry.Action, entry.EntityType, entry.EntityID,
		before, after, entry.IPAddress, entry.UserAgent, entry.CreatedAt).Scan(&entry.Sequence)
}

func (s *AuditStore) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, uint64, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}
	var (
		conds []string
		args  []any
		idx   = 1
	)
	add := func(cond string, val any) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, val)
		idx++
	}
	add("sequence > $%d", filter.AfterSeq)
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	query := fmt.Sprintf(`
		select id, sequence, actor_id, actor_role, action, entity_type, entity_id,
		       coalesce(before_data,'{}'), coalesce(after_data,'{}'),
		       ip_address, user_agent, created_at
		from audit_log
		where %s
		order by sequence asc
		limit $%d
	`, strings.Join(conds, " and "), idx)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		entries []audit.Entry
		last    uint64
	)
	for rows.Next() {
		var (
			entry         audit.Entry
			role          string
			before, after []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Sequence, &entry.ActorID, &role, &entry.Action, &entry.EntityType, &entry.EntityID,
			&before, &after, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, 0, err
		}
		entry.ActorRole = access.Role(role)
		if err := unmarshalSnapshot(before, &entry.BeforeData); err != nil {
			return nil, 0, err
		}
		if err := unmarshalSnapshot(after, &entry.AfterData); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
		last = entry.Sequence
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, last, nil
}

func marshalSnapshot(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return json.Marshal(data)
}

func unmarshalSnapshot(raw []byte, into *map[string]any) error {
	if len(raw) == 0 || string(raw) == "{}" {
		return nil
	}
	return json.Unmarshal(raw, into)
}
