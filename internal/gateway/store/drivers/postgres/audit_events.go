package postgres

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

const insertAuditEvent = `insert into audit_events
	(id, occurred_at, request_id, identity, decision, latency_ns, detail, model_version)
	values ($1, $2, $3, $4, $5, $6, $7, $8)`

const selectAuditEvent = `select id, occurred_at, request_id, identity, decision, latency_ns, detail, model_version
	from audit_events`

func (r *auditEventsRepo) AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		if _, err := tx.ExecContext(ctx, insertAuditEvent,
			e.ID,
			e.Timestamp.UTC(),
			e.RequestID,
			string(e.Identity),
			string(e.Decision),
			int64(e.Latency),
			e.Detail,
			e.ModelVersion,
		); err != nil {
			return fmt.Errorf("postgres: insert audit event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (r *auditEventsRepo) GetAuditEvent(ctx context.Context, id string) (domain.AuditEvent, error) {
	e, err := scanAuditEvent(r.db.QueryRowContext(ctx, selectAuditEvent+` where id = $1`, id))
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Identity != "" {
		where = append(where, "identity = "+arg(string(f.Identity)))
	}
	if f.Decision != "" {
		where = append(where, "decision = "+arg(string(f.Decision)))
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_at >= "+arg(f.Since.UTC()))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultAuditListLimit
	}

	q := selectAuditEvent
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by occurred_at asc, id asc limit " + arg(limit)

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
	res, err := r.db.ExecContext(ctx, `delete from audit_events where occurred_at < $1`, cutoff.UTC())
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
		e                  domain.AuditEvent
		latencyNs          int64
		identity, decision string
	)
	if err := s.Scan(&e.ID, &e.Timestamp, &e.RequestID, &identity, &decision, &latencyNs, &e.Detail, &e.ModelVersion); err != nil {
		return domain.AuditEvent{}, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Identity = domain.Identity(identity)
	e.Decision = domain.Decision(decision)
	e.Latency = time.Duration(latencyNs)
	return e, nil
}
