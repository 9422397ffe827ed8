package gateway

import (
	"sync"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// Caches holds the auxiliary entity state maintained from dispatch events and
// REST hydration. Entries are last-write-wins with no TTL; platform churn
// events remove them.
type Caches struct {
	mu         sync.RWMutex
	channels   map[string]domain.Channel
	roles      map[string]domain.Role
	members    map[string]domain.Member
	presences  map[string]domain.PresenceEntry
	guildNames map[string]string
}

// NewCaches returns empty caches.
func NewCaches() *Caches {
	return &Caches{
		channels:   make(map[string]domain.Channel),
		roles:      make(map[string]domain.Role),
		members:    make(map[string]domain.Member),
		presences:  make(map[string]domain.PresenceEntry),
		guildNames: make(map[string]string),
	}
}

// PutGuildName records the display name delivered with a guild snapshot.
func (c *Caches) PutGuildName(guildID, name string) {
	if guildID == "" || name == "" {
		return
	}
	c.mu.Lock()
	c.guildNames[guildID] = name
	c.mu.Unlock()
}

// GuildName returns the cached display name for a guild, or "".
func (c *Caches) GuildName(guildID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guildNames[guildID]
}

// PutChannel stores or replaces a channel.
func (c *Caches) PutChannel(ch domain.Channel) {
	c.mu.Lock()
	c.channels[ch.ID] = ch
	c.mu.Unlock()
}

// DeleteChannel removes a channel.
func (c *Caches) DeleteChannel(id string) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
}

// Channel looks up a channel by id.
func (c *Caches) Channel(id string) (domain.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// Channels returns a snapshot of all cached channels.
func (c *Caches) Channels() []domain.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// PutRole stores or replaces a role.
func (c *Caches) PutRole(role domain.Role) {
	c.mu.Lock()
	c.roles[role.ID] = role
	c.mu.Unlock()
}

// DeleteRole removes a role.
func (c *Caches) DeleteRole(id string) {
	c.mu.Lock()
	delete(c.roles, id)
	c.mu.Unlock()
}

// PutMember stores or replaces a member.
func (c *Caches) PutMember(m domain.Member) {
	c.mu.Lock()
	c.members[m.UserID] = m
	c.mu.Unlock()
}

// UpsertMembers bulk-loads members, returning how many were new.
func (c *Caches) UpsertMembers(members []domain.Member) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, m := range members {
		if _, exists := c.members[m.UserID]; !exists {
			added++
		}
		c.members[m.UserID] = m
	}
	return added
}

// DeleteMember removes a member.
func (c *Caches) DeleteMember(userID string) {
	c.mu.Lock()
	delete(c.members, userID)
	c.mu.Unlock()
}

// Member looks up a member by user id.
func (c *Caches) Member(userID string) (domain.Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[userID]
	return m, ok
}

// MemberRoles returns the cached role ids for a user, or nil.
func (c *Caches) MemberRoles(userID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.members[userID]; ok {
		return m.Roles
	}
	return nil
}

// PutPresence stores the last observed presence.
func (c *Caches) PutPresence(p domain.PresenceEntry) {
	c.mu.Lock()
	c.presences[p.UserID] = p
	c.mu.Unlock()
}

// Counts reports cache sizes for diagnostics.
func (c *Caches) Counts() (channels, roles, members, presences int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels), len(c.roles), len(c.members), len(c.presences)
}
