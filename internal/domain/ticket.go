package domain

import "time"

// ActivityTimerType enumerates inactivity timer classes on a ticket.
type ActivityTimerType string

const (
	TimerNone    ActivityTimerType = "NONE"
	TimerRegular ActivityTimerType = "REGULAR"
	TimerClosing ActivityTimerType = "CLOSING"
)

// TicketRecord is the aggregate tracked for each open conversation channel.
type TicketRecord struct {
	ChannelID          string            `json:"channel_id"`
	ChannelName        string            `json:"channel_name"`
	GuildID            string            `json:"guild_id"`
	GuildName          string            `json:"guild_name"`
	CreatedAt          time.Time         `json:"created_at"`
	OpenerID           string            `json:"opener_id"`
	OpenerUsername     string            `json:"opener_username"`
	LastMessage        string            `json:"last_message"`
	LastMessageAt      *time.Time        `json:"last_message_at,omitempty"`
	FirstStaffReplyAt  *time.Time        `json:"first_staff_reply_at,omitempty"`
	LastStaffMessageAt *time.Time        `json:"last_staff_message_at,omitempty"`
	WaitingForReply    bool              `json:"waiting_for_reply"`
	ActivityTimerType  ActivityTimerType `json:"activity_timer_type"`
	ClosedAt           *time.Time        `json:"closed_at,omitempty"`
}

// ArchivedMessage is one transcript line persisted with a closed ticket.
type ArchivedMessage struct {
	MessageID      string    `json:"message_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
}
