package gateway

import (
	"sync"

	"github.com/emberwake/relaygate/src/structs"
)

type roleEntry struct {
	color    int
	position int
}

// RoleCache holds the role table of the relayed guild, rebuilt from each
// GUILD_CREATE dispatch. Last writer wins.
type RoleCache struct {
	mu    sync.RWMutex
	roles map[string]roleEntry
}

func NewRoleCache() *RoleCache {
	return &RoleCache{roles: make(map[string]roleEntry)}
}

func (c *RoleCache) Replace(roles []structs.Role) {
	table := make(map[string]roleEntry, len(roles))
	for _, role := range roles {
		table[role.ID] = roleEntry{color: role.Color, position: role.Position}
	}
	c.mu.Lock()
	c.roles = table
	c.mu.Unlock()
}

// ColorFor resolves a member's display color: of the member's cached
// roles that carry a color, the highest positioned one wins. Roles
// missing from the cache are skipped. The second return reports whether
// any color applies.
func (c *RoleCache) ColorFor(roleIDs []string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	best := roleEntry{position: -1}
	found := false
	for _, id := range roleIDs {
		entry, ok := c.roles[id]
		if !ok || entry.color == 0 {
			continue
		}
		if !found || entry.position > best.position {
			best = entry
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best.color, true
}

func (c *RoleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.roles)
}
