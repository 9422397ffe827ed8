package domain

import "time"

// Channel is a cached platform channel keyed by snowflake id.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name,omitempty"`
	ParentID  string `json:"parent_id"`
	Type      int    `json:"type"`
}

// Role is a cached guild role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a cached guild member.
type Member struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Nick     string   `json:"nick,omitempty"`
	Roles    []string `json:"roles"`
	Bot      bool     `json:"bot"`
}

// PresenceEntry is the last observed presence for a member.
type PresenceEntry struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// Message is the normalized inbound chat message handed to the ticket tracker
// and decision pipeline.
type Message struct {
	ID             string
	ChannelID      string
	GuildID        string
	AuthorID       string
	AuthorUsername string
	AuthorBot      bool
	MemberRoles    []string
	Content        string
	Nonce          string
	Timestamp      time.Time
}
