package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fairgate/internal/domain"
)

var _ domain.LedgerEventRepository = (*LedgerEventRepo)(nil)

// LedgerEventRepo persists hash-chained ledger events. Both pools carry the
// restricted credential that refuses UPDATE and DELETE on ledger tables, so
// nothing reachable through this type can rewrite history.
type LedgerEventRepo struct {
	appendDB *sql.DB
	readDB   *sql.DB
}

// NewLedgerEventRepo creates a LedgerEventRepo over the restricted
// append/read pool pair.
func NewLedgerEventRepo(appendDB, readDB *sql.DB) *LedgerEventRepo {
	return &LedgerEventRepo{appendDB: appendDB, readDB: readDB}
}

// Insert writes one event row. The caller assigns SequenceNo, PrevHash and
// ThisHash; the UNIQUE sequence_no column rejects duplicates.
func (r *LedgerEventRepo) Insert(ctx context.Context, e *domain.LedgerEvent) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.appendDB.ExecContext(ctx, `
		INSERT INTO ledger_events (sequence_no, prev_hash, this_hash, event_type, principal_id, role_at_time, subject_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SequenceNo, e.PrevHash, e.ThisHash, string(e.EventType), e.PrincipalID, e.RoleAtTime,
		nullIfEmpty(e.SubjectID), string(payloadJSON), e.CreatedAt.UTC())
	if err != nil {
		return mapDBError(err)
	}
	return nil
}

// Head returns the highest sequence number and its hash, or (0, "") for an
// empty ledger.
func (r *LedgerEventRepo) Head(ctx context.Context) (int64, string, error) {
	var (
		seq  int64
		hash string
	)
	err := r.readDB.QueryRowContext(ctx, `
		SELECT sequence_no, this_hash FROM ledger_events ORDER BY sequence_no DESC LIMIT 1
	`).Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", mapDBError(err)
	}
	return seq, hash, nil
}

// GetBySequence returns a single event by sequence number.
func (r *LedgerEventRepo) GetBySequence(ctx context.Context, seq int64) (*domain.LedgerEvent, error) {
	row := r.readDB.QueryRowContext(ctx, `
		SELECT sequence_no, prev_hash, this_hash, event_type, principal_id, role_at_time, subject_id, payload, created_at
		FROM ledger_events WHERE sequence_no = ?
	`, seq)
	ev, err := scanLedgerEvent(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return ev, nil
}

// ListRange returns events with fromSeq <= sequence_no <= toSeq in sequence
// order. A toSeq of zero means unbounded; limit caps the batch size.
func (r *LedgerEventRepo) ListRange(ctx context.Context, fromSeq, toSeq int64, limit int) ([]domain.LedgerEvent, error) {
	if limit <= 0 {
		limit = domain.DefaultMaxResults
	}

	stmt := `
		SELECT sequence_no, prev_hash, this_hash, event_type, principal_id, role_at_time, subject_id, payload, created_at
		FROM ledger_events WHERE sequence_no >= ?`
	args := []interface{}{fromSeq}
	if toSeq > 0 {
		stmt += ` AND sequence_no <= ?`
		args = append(args, toSeq)
	}
	stmt += ` ORDER BY sequence_no LIMIT ?`
	args = append(args, limit)

	return r.listEvents(ctx, stmt, args...)
}

// ListBySubject returns all events referencing a subject, in sequence order.
func (r *LedgerEventRepo) ListBySubject(ctx context.Context, subjectID string, page domain.PageRequest) ([]domain.LedgerEvent, int64, error) {
	var total int64
	err := r.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_events WHERE subject_id = ?
	`, subjectID).Scan(&total)
	if err != nil {
		return nil, 0, mapDBError(err)
	}

	events, err := r.listEvents(ctx, `
		SELECT sequence_no, prev_hash, this_hash, event_type, principal_id, role_at_time, subject_id, payload, created_at
		FROM ledger_events WHERE subject_id = ?
		ORDER BY sequence_no LIMIT ? OFFSET ?
	`, subjectID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListByTime returns events in [From, To) optionally restricted to one type.
func (r *LedgerEventRepo) ListByTime(ctx context.Context, filter domain.LedgerTimeFilter) ([]domain.LedgerEvent, int64, error) {
	where := ` WHERE created_at >= ? AND created_at < ?`
	args := []interface{}{filter.From.UTC(), filter.To.UTC()}
	if filter.EventType != nil {
		where += ` AND event_type = ?`
		args = append(args, string(*filter.EventType))
	}

	var total int64
	if err := r.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	stmt := `
		SELECT sequence_no, prev_hash, this_hash, event_type, principal_id, role_at_time, subject_id, payload, created_at
		FROM ledger_events` + where + `
		ORDER BY sequence_no LIMIT ? OFFSET ?`

	events, err := r.listEvents(ctx, stmt, append(args, filter.Page.Limit(), filter.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *LedgerEventRepo) listEvents(ctx context.Context, stmt string, args ...interface{}) ([]domain.LedgerEvent, error) {
	rows, err := r.readDB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	events := make([]domain.LedgerEvent, 0)
	for rows.Next() {
		ev, err := scanLedgerEvent(rows)
		if err != nil {
			return nil, mapDBError(err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err)
	}
	return events, nil
}

func scanLedgerEvent(row rowScanner) (*domain.LedgerEvent, error) {
	var (
		ev          domain.LedgerEvent
		eventType   string
		subjectID   sql.NullString
		payloadJSON string
		createdAt   time.Time
	)
	err := row.Scan(
		&ev.SequenceNo,
		&ev.PrevHash,
		&ev.ThisHash,
		&eventType,
		&ev.PrincipalID,
		&ev.RoleAtTime,
		&subjectID,
		&payloadJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	ev.EventType = domain.EventType(eventType)
	if subjectID.Valid {
		ev.SubjectID = subjectID.String
	}
	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &ev.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	ev.CreatedAt = createdAt.UTC()
	return &ev, nil
}
