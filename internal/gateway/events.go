package gateway

import (
	"time"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// Dispatch event names consumed by the router.
const (
	EventReady         = "READY"
	EventResumed       = "RESUMED"
	EventGuildCreate   = "GUILD_CREATE"
	EventChannelCreate = "CHANNEL_CREATE"
	EventChannelDelete = "CHANNEL_DELETE"
	EventMessageCreate = "MESSAGE_CREATE"
	EventMemberAdd     = "GUILD_MEMBER_ADD"
	EventMemberUpdate  = "GUILD_MEMBER_UPDATE"
	EventMemberRemove  = "GUILD_MEMBER_REMOVE"
	EventPresence      = "PRESENCE_UPDATE"
	EventRoleCreate    = "GUILD_ROLE_CREATE"
	EventRoleUpdate    = "GUILD_ROLE_UPDATE"
	EventRoleDelete    = "GUILD_ROLE_DELETE"
	EventMembersChunk  = "GUILD_MEMBERS_CHUNK"
)

// UserPayload is the author/user fragment shared by several events.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// ReadyEvent carries the session identity.
type ReadyEvent struct {
	SessionID        string      `json:"session_id"`
	ResumeGatewayURL string      `json:"resume_gateway_url"`
	User             UserPayload `json:"user"`
}

// ChannelPayload is the channel fragment of channel and guild events.
type ChannelPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	GuildID  string `json:"guild_id"`
	ParentID string `json:"parent_id"`
	Type     int    `json:"type"`
}

// RolePayload is the role fragment of role events.
type RolePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type roleEvent struct {
	GuildID string      `json:"guild_id"`
	Role    RolePayload `json:"role"`
	RoleID  string      `json:"role_id"`
}

// MemberPayload is the member fragment of member events and chunks.
type MemberPayload struct {
	User  UserPayload `json:"user"`
	Nick  string      `json:"nick"`
	Roles []string    `json:"roles"`
}

type memberRemoveEvent struct {
	GuildID string      `json:"guild_id"`
	User    UserPayload `json:"user"`
}

// PresencePayload is the presence fragment of presence events.
type PresencePayload struct {
	User   UserPayload `json:"user"`
	Status string      `json:"status"`
}

// GuildCreateEvent is the guild snapshot delivered on connect.
type GuildCreateEvent struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Channels  []ChannelPayload  `json:"channels"`
	Roles     []RolePayload     `json:"roles"`
	Members   []MemberPayload   `json:"members"`
	Presences []PresencePayload `json:"presences"`
}

// MembersChunkEvent is one page of the member directory (restricted auth
// mode only).
type MembersChunkEvent struct {
	GuildID string          `json:"guild_id"`
	Members []MemberPayload `json:"members"`
}

// MessagePayload is the message-created event body.
type MessagePayload struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	GuildID   string      `json:"guild_id"`
	Content   string      `json:"content"`
	Nonce     string      `json:"nonce"`
	Author    UserPayload `json:"author"`
	Member    *struct {
		Nick  string   `json:"nick"`
		Roles []string `json:"roles"`
	} `json:"member"`
	Timestamp string `json:"timestamp"`
}

func (p MemberPayload) toDomain() domain.Member {
	return domain.Member{
		UserID:   p.User.ID,
		Username: p.User.Username,
		Nick:     p.Nick,
		Roles:    p.Roles,
		Bot:      p.User.Bot,
	}
}

func (p ChannelPayload) toDomain(guildID string) domain.Channel {
	ch := domain.Channel{
		ID:       p.ID,
		Name:     p.Name,
		GuildID:  p.GuildID,
		ParentID: p.ParentID,
		Type:     p.Type,
	}
	if ch.GuildID == "" {
		ch.GuildID = guildID
	}
	return ch
}

func (p MessagePayload) toDomain() domain.Message {
	msg := domain.Message{
		ID:             p.ID,
		ChannelID:      p.ChannelID,
		GuildID:        p.GuildID,
		AuthorID:       p.Author.ID,
		AuthorUsername: p.Author.Username,
		AuthorBot:      p.Author.Bot,
		Content:        p.Content,
		Nonce:          p.Nonce,
	}
	if p.Member != nil {
		msg.MemberRoles = p.Member.Roles
	}
	if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}
