package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
)

type auditEventsRepo struct {
	db *sql.DB
}

const insertAuditEvent = `
INSERT INTO audit_events (id, occurred_at_ns, request_id, identity, decision, latency_ns, detail, model_version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectAuditEvent = `
SELECT id, occurred_at_ns, request_id, identity, decision, latency_ns, detail, model_version
FROM audit_events`

func (r *auditEventsRepo) AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertAuditEvent)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range events {
			if _, err := stmt.ExecContext(ctx,
				e.ID,
				e.Timestamp.UnixNano(),
				e.RequestID,
				string(e.Identity),
				string(e.Decision),
				int64(e.Latency),
				e.Detail,
				e.ModelVersion,
			); err != nil {
				return fmt.Errorf("sqlite: insert audit event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (r *auditEventsRepo) GetAuditEvent(ctx context.Context, id string) (domain.AuditEvent, error) {
	row := r.db.QueryRowContext(ctx, selectAuditEvent+` WHERE id = ?`, id)
	e, err := scanAuditEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditEvent{}, store.ErrNotFound
	}
	return e, err
}

func (r *auditEventsRepo) ListAuditEvents(ctx context.Context, f store.AuditFilter) ([]domain.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, string(f.Identity))
	}
	if f.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, string(f.Decision))
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_at_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultAuditListLimit
	}

	q := selectAuditEvent
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY occurred_at_ns ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditEventsRepo) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditEvent(s scanner) (domain.AuditEvent, error) {
	var (
		e                     domain.AuditEvent
		occurredNs, latencyNs int64
		identity, decision    string
	)
	if err := s.Scan(&e.ID, &occurredNs, &e.RequestID, &identity, &decision, &latencyNs, &e.Detail, &e.ModelVersion); err != nil {
		return domain.AuditEvent{}, err
	}
	e.Timestamp = time.Unix(0, occurredNs).UTC()
	e.Identity = domain.Identity(identity)
	e.Decision = domain.Decision(decision)
	e.Latency = time.Duration(latencyNs)
	return e, nil
}
