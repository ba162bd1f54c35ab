package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// foreignKeyViolation is the SQLSTATE for foreign_key_violation.
const foreignKeyViolation = "23503"

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store over a pgx pool.
type Store struct {
	db *DB
}

// NewStore wraps db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.Ready(ctx) }

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}

// mapErr converts driver errors to repository sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return repository.ErrDuplicate
		case foreignKeyViolation:
			return repository.ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) limit(n int) string {
	if n <= 0 {
		return ""
	}
	w.args = append(w.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(w.args))
}

const eventColumns = `id, guild_id, channel_id, message_id, thread_id, creator_id, title, description,
	start_time, duration_minutes, max_participants, role_limits, allowed_role_ids, bench_overflow,
	require_approval, signup_deadline_hours, status, archived_at, deleted_at, created_at, updated_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		e      model.Event
		limits []byte
		status string
	)
	err := row.Scan(&e.ID, &e.GuildID, &e.ChannelID, &e.MessageID, &e.ThreadID, &e.CreatorID,
		&e.Title, &e.Description, &e.StartTime, &e.Duration, &e.MaxParticipants, &limits,
		&e.AllowedRoleIDs, &e.BenchOverflow, &e.RequireApproval, &e.SignupDeadlineHours,
		&status, &e.ArchivedAt, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.Event{}, err
	}
	e.Status = model.EventStatus(status)
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &e.RoleLimits); err != nil {
			return model.Event{}, fmt.Errorf("decode role limits: %w", err)
		}
	}
	if len(e.RoleLimits) == 0 {
		e.RoleLimits = nil
	}
	if len(e.AllowedRoleIDs) == 0 {
		e.AllowedRoleIDs = nil
	}
	return e, nil
}

func eventArgs(e *model.Event) ([]any, error) {
	limits := e.RoleLimits
	if limits == nil {
		limits = model.RoleLimits{}
	}
	b, err := json.Marshal(limits)
	if err != nil {
		return nil, fmt.Errorf("encode role limits: %w", err)
	}
	roles := e.AllowedRoleIDs
	if roles == nil {
		roles = []string{}
	}
	return []any{e.ID, e.GuildID, e.ChannelID, e.MessageID, e.ThreadID, e.CreatorID, e.Title,
		e.Description, e.StartTime, e.Duration, e.MaxParticipants, b, roles, e.BenchOverflow,
		e.RequireApproval, e.SignupDeadlineHours, string(e.Status), e.ArchivedAt, e.DeletedAt,
		e.CreatedAt, e.UpdatedAt}, nil
}

// GetEvent implements repository.EventStore.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	defer observeQuery(time.Now())
	e, err := scanEvent(s.db.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return model.Event{}, mapErr("get event", err)
	}
	return e, nil
}

// ListEvents implements repository.EventStore.
func (s *Store) ListEvents(ctx context.Context, f repository.EventFilter) ([]model.Event, error) {
	defer observeQuery(time.Now())
	var w where
	if f.GuildID != "" {
		w.add("guild_id = ?", f.GuildID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", statuses)
	}
	if !f.StartsBefore.IsZero() {
		w.add("start_time <= ?", f.StartsBefore)
	}
	if !f.IncludeDeleted {
		w.addRaw("deleted_at IS NULL")
	}
	q := `SELECT ` + eventColumns + ` FROM events` + w.String() + ` ORDER BY start_time, id` + w.limit(f.Limit)

	rows, err := s.db.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, mapErr("list events", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEvent implements repository.EventStore.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) error {
	defer observeUpdate(time.Now())
	args, err := eventArgs(&e)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		args...)
	return mapErr("insert event", err)
}

// UpdateEvent implements repository.EventStore.
func (s *Store) UpdateEvent(ctx context.Context, e model.Event) error {
	defer observeUpdate(time.Now())
	args, err := eventArgs(&e)
	if err != nil {
		return err
	}
	tag, err := s.db.Pool.Exec(ctx, `UPDATE events SET
		guild_id = $2, channel_id = $3, message_id = $4, thread_id = $5, creator_id = $6, title = $7,
		description = $8, start_time = $9, duration_minutes = $10, max_participants = $11,
		role_limits = $12, allowed_role_ids = $13, bench_overflow = $14, require_approval = $15,
		signup_deadline_hours = $16, status = $17, archived_at = $18, deleted_at = $19,
		created_at = $20, updated_at = $21
		WHERE id = $1`, args...)
	if err != nil {
		return mapErr("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteEvent implements repository.EventStore. Participants and reminders
// are removed by ON DELETE CASCADE.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const participantColumns = `event_id, user_id, username, role, spec, status, position, joined_at, overflow`

func scanParticipant(row pgx.Row) (model.Participant, error) {
	var (
		p      model.Participant
		status string
	)
	if err := row.Scan(&p.EventID, &p.UserID, &p.Username, &p.Role, &p.Spec, &status,
		&p.Position, &p.JoinedAt, &p.Overflow); err != nil {
		return model.Participant{}, err
	}
	p.Status = model.ParticipantStatus(status)
	return p, nil
}

// GetParticipant implements repository.ParticipantStore.
func (s *Store) GetParticipant(ctx context.Context, eventID, userID string) (model.Participant, error) {
	defer observeQuery(time.Now())
	p, err := scanParticipant(s.db.Pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil {
		return model.Participant{}, mapErr("get participant", err)
	}
	return p, nil
}

// ListParticipants implements repository.ParticipantStore.
func (s *Store) ListParticipants(ctx context.Context, f repository.ParticipantFilter) ([]model.Participant, error) {
	defer observeQuery(time.Now())
	var w where
	if f.EventID != "" {
		w.add("event_id = ?", f.EventID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", statuses)
	}
	if f.Role != nil {
		w.add("role = ?", *f.Role)
	}
	q := `SELECT ` + participantColumns + ` FROM participants` + w.String() +
		` ORDER BY joined_at, user_id` + w.limit(f.Limit)

	rows, err := s.db.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, mapErr("list participants", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateParticipant implements repository.ParticipantStore. The primary key
// on (event_id, user_id) makes concurrent duplicate inserts fail with
// repository.ErrDuplicate.
func (s *Store) CreateParticipant(ctx context.Context, p model.Participant) error {
	defer observeUpdate(time.Now())
	_, err := s.db.Pool.Exec(ctx, `INSERT INTO participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.EventID, p.UserID, p.Username, p.Role, p.Spec, string(p.Status), p.Position, p.JoinedAt, p.Overflow)
	return mapErr("insert participant", err)
}

// UpdateParticipant implements repository.ParticipantStore.
func (s *Store) UpdateParticipant(ctx context.Context, p model.Participant) error {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `UPDATE participants SET
		username = $3, role = $4, spec = $5, status = $6, position = $7, joined_at = $8, overflow = $9
		WHERE event_id = $1 AND user_id = $2`,
		p.EventID, p.UserID, p.Username, p.Role, p.Spec, string(p.Status), p.Position, p.JoinedAt, p.Overflow)
	if err != nil {
		return mapErr("update participant", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteParticipant implements repository.ParticipantStore.
func (s *Store) DeleteParticipant(ctx context.Context, eventID, userID string) error {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM participants WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return mapErr("delete participant", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteParticipants implements repository.ParticipantStore.
func (s *Store) DeleteParticipants(ctx context.Context, eventID string) (int, error) {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM participants WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, mapErr("delete participants", err)
	}
	return int(tag.RowsAffected()), nil
}

// CreateReminder implements repository.ReminderStore.
func (s *Store) CreateReminder(ctx context.Context, r model.Reminder) error {
	defer observeUpdate(time.Now())
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO reminders (id, event_id, user_id, remind_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.EventID, r.UserID, r.RemindAt)
	return mapErr("insert reminder", err)
}

// ListReminders implements repository.ReminderStore.
func (s *Store) ListReminders(ctx context.Context, eventID string) ([]model.Reminder, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, event_id, user_id, remind_at FROM reminders WHERE event_id = $1 ORDER BY remind_at, id`,
		eventID)
	if err != nil {
		return nil, mapErr("list reminders", err)
	}
	defer rows.Close()

	out := make([]model.Reminder, 0)
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &r.RemindAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReminders implements repository.ReminderStore.
func (s *Store) DeleteReminders(ctx context.Context, eventID string) (int, error) {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM reminders WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, mapErr("delete reminders", err)
	}
	return int(tag.RowsAffected()), nil
}

const guildColumns = `guild_id, message_retention_seconds, log_retention_seconds, archive_channel_id, delete_threads, updated_at`

func scanGuild(row pgx.Row) (model.GuildSettings, error) {
	var (
		g             model.GuildSettings
		msgRet, logRt int64
	)
	if err := row.Scan(&g.GuildID, &msgRet, &logRt, &g.ArchiveChannelID, &g.DeleteThreads, &g.UpdatedAt); err != nil {
		return model.GuildSettings{}, err
	}
	g.MessageRetention = time.Duration(msgRet) * time.Second
	g.LogRetention = time.Duration(logRt) * time.Second
	return g, nil
}

// GetGuildSettings implements repository.GuildStore.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (model.GuildSettings, error) {
	defer observeQuery(time.Now())
	g, err := scanGuild(s.db.Pool.QueryRow(ctx, `SELECT `+guildColumns+` FROM guild_settings WHERE guild_id = $1`, guildID))
	if err != nil {
		return model.GuildSettings{}, mapErr("get guild settings", err)
	}
	return g, nil
}

// ListGuildSettings implements repository.GuildStore.
func (s *Store) ListGuildSettings(ctx context.Context) ([]model.GuildSettings, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.Pool.Query(ctx, `SELECT `+guildColumns+` FROM guild_settings ORDER BY guild_id`)
	if err != nil {
		return nil, mapErr("list guild settings", err)
	}
	defer rows.Close()

	out := make([]model.GuildSettings, 0)
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guild settings: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGuildSettings implements repository.GuildStore.
func (s *Store) UpsertGuildSettings(ctx context.Context, g model.GuildSettings) error {
	defer observeUpdate(time.Now())
	_, err := s.db.Pool.Exec(ctx, `INSERT INTO guild_settings (`+guildColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id) DO UPDATE SET
			message_retention_seconds = EXCLUDED.message_retention_seconds,
			log_retention_seconds = EXCLUDED.log_retention_seconds,
			archive_channel_id = EXCLUDED.archive_channel_id,
			delete_threads = EXCLUDED.delete_threads,
			updated_at = EXCLUDED.updated_at`,
		g.GuildID, int64(g.MessageRetention/time.Second), int64(g.LogRetention/time.Second),
		g.ArchiveChannelID, g.DeleteThreads, g.UpdatedAt)
	return mapErr("upsert guild settings", err)
}

// AppendAudit implements repository.AuditStore. Redelivered entries are ignored.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	defer observeUpdate(time.Now())
	_, err := s.db.Pool.Exec(ctx, `INSERT INTO audit_log
		(id, guild_id, event_id, action, actor_id, actor_name, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.GuildID, e.EventID, e.Action, e.ActorID, e.ActorName, e.Details, e.CreatedAt)
	return mapErr("insert audit", err)
}

// ListAudit implements repository.AuditStore. Newest entries come first.
func (s *Store) ListAudit(ctx context.Context, guildID string, limit int) ([]model.AuditEntry, error) {
	defer observeQuery(time.Now())
	var w where
	w.add("guild_id = ?", guildID)
	q := `SELECT id, guild_id, event_id, action, actor_id, actor_name, details, created_at
		FROM audit_log` + w.String() + ` ORDER BY created_at DESC, id DESC` + w.limit(limit)

	rows, err := s.db.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, mapErr("list audit", err)
	}
	defer rows.Close()

	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.EventID, &e.Action, &e.ActorID, &e.ActorName,
			&e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AuditGuilds implements repository.AuditStore.
func (s *Store) AuditGuilds(ctx context.Context) ([]string, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.Pool.Query(ctx, `SELECT DISTINCT guild_id FROM audit_log ORDER BY guild_id`)
	if err != nil {
		return nil, mapErr("list audit guilds", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// PurgeAudit implements repository.AuditStore.
func (s *Store) PurgeAudit(ctx context.Context, guildID string, before time.Time) (int, error) {
	defer observeUpdate(time.Now())
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM audit_log WHERE guild_id = $1 AND created_at < $2`, guildID, before)
	if err != nil {
		return 0, mapErr("purge audit", err)
	}
	return int(tag.RowsAffected()), nil
}

// AccrueStats implements repository.StatsStore in a single statement.
func (s *Store) AccrueStats(ctx context.Context, guildID string, userIDs []string, at time.Time) error {
	defer observeUpdate(time.Now())
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.db.Pool.Exec(ctx, `INSERT INTO participant_stats (guild_id, user_id, events_completed, last_completed_at)
		SELECT $1, u, 1, $3 FROM unnest($2::text[]) AS u
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			events_completed = participant_stats.events_completed + 1,
			last_completed_at = EXCLUDED.last_completed_at`,
		guildID, userIDs, at)
	return mapErr("accrue stats", err)
}

// GetStats implements repository.StatsStore.
func (s *Store) GetStats(ctx context.Context, guildID, userID string) (model.ParticipantStats, error) {
	defer observeQuery(time.Now())
	var st model.ParticipantStats
	err := s.db.Pool.QueryRow(ctx, `SELECT guild_id, user_id, events_completed, last_completed_at
		FROM participant_stats WHERE guild_id = $1 AND user_id = $2`, guildID, userID).
		Scan(&st.GuildID, &st.UserID, &st.EventsCompleted, &st.LastCompletedAt)
	if err != nil {
		return model.ParticipantStats{}, mapErr("get stats", err)
	}
	return st, nil
}
