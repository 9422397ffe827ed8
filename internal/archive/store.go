package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// ClosedTicket is one archived ticket row joined with its metrics.
type ClosedTicket struct {
	ID             string              `json:"id"`
	Record         domain.TicketRecord `json:"record"`
	MessageCount   int                 `json:"message_count"`
	FirstReplySecs *int64              `json:"first_reply_seconds,omitempty"`
	ArchivedAt     time.Time           `json:"archived_at"`
}

// Store persists closed tickets and their transcripts to Postgres. A nil pool
// makes every method a logged no-op so the bot can run without a database.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore wraps the shared pgx pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// SaveClosedTicket writes the ticket row and transcript in one transaction.
func (s *Store) SaveClosedTicket(ctx context.Context, rec domain.TicketRecord, transcript []domain.ArchivedMessage) error {
	if s.pool == nil {
		s.logger.Debug("no database pool, skipping ticket archive",
			zap.String("channel_id", rec.ChannelID))
		return nil
	}

	id := uuid.NewString()
	var firstReplySecs *int64
	if rec.FirstStaffReplyAt != nil {
		secs := int64(rec.FirstStaffReplyAt.Sub(rec.CreatedAt).Seconds())
		firstReplySecs = &secs
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO closed_tickets (
			id, channel_id, channel_name, guild_id, opener_id, opener_username,
			created_at, closed_at, first_reply_seconds, message_count, last_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (channel_id) DO NOTHING`,
		id, rec.ChannelID, rec.ChannelName, rec.GuildID, rec.OpenerID,
		rec.OpenerUsername, rec.CreatedAt, rec.ClosedAt, firstReplySecs,
		len(transcript), rec.LastMessage,
	)
	if err != nil {
		return fmt.Errorf("insert closed ticket: %w", err)
	}

	for _, msg := range transcript {
		_, err = tx.Exec(ctx, `
			INSERT INTO archived_messages (
				id, ticket_id, message_id, author_id, author_username, content, sent_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (message_id) DO NOTHING`,
			uuid.NewString(), id, msg.MessageID, msg.AuthorID,
			msg.AuthorUsername, msg.Content, msg.SentAt,
		)
		if err != nil {
			return fmt.Errorf("insert archived message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	s.logger.Info("ticket archived",
		zap.String("channel_id", rec.ChannelID),
		zap.Int("transcript", len(transcript)))
	return nil
}

// ListClosed returns the most recently archived tickets.
func (s *Store) ListClosed(ctx context.Context, limit int) ([]ClosedTicket, error) {
	if s.pool == nil {
		return []ClosedTicket{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, channel_name, guild_id, opener_id, opener_username,
		       created_at, closed_at, first_reply_seconds, message_count,
		       last_message, archived_at
		FROM closed_tickets
		ORDER BY archived_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed tickets: %w", err)
	}
	defer rows.Close()

	out := make([]ClosedTicket, 0, limit)
	for rows.Next() {
		var ct ClosedTicket
		err := rows.Scan(
			&ct.ID, &ct.Record.ChannelID, &ct.Record.ChannelName,
			&ct.Record.GuildID, &ct.Record.OpenerID, &ct.Record.OpenerUsername,
			&ct.Record.CreatedAt, &ct.Record.ClosedAt, &ct.FirstReplySecs,
			&ct.MessageCount, &ct.Record.LastMessage, &ct.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed ticket: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// Transcript returns the archived messages of one closed ticket.
func (s *Store) Transcript(ctx context.Context, ticketID string) ([]domain.ArchivedMessage, error) {
	if s.pool == nil {
		return []domain.ArchivedMessage{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, author_id, author_username, content, sent_at
		FROM archived_messages
		WHERE ticket_id = $1
		ORDER BY sent_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchivedMessage
	for rows.Next() {
		var msg domain.ArchivedMessage
		if err := rows.Scan(&msg.MessageID, &msg.AuthorID, &msg.AuthorUsername,
			&msg.Content, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AverageFirstReply computes the mean first-staff-reply latency over the
// archive, in seconds. Returns false when no archived ticket has one.
func (s *Store) AverageFirstReply(ctx context.Context) (float64, bool, error) {
	if s.pool == nil {
		return 0, false, nil
	}
	var avg *float64
	err := s.pool.QueryRow(ctx, `
		SELECT AVG(first_reply_seconds)
		FROM closed_tickets
		WHERE first_reply_seconds IS NOT NULL`).Scan(&avg)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query avg first reply: %w", err)
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}
