package structs

// https://discord.com/developers/docs/resources/guild#guild-member-object
type Member struct {
	User  *User    `json:"user,omitempty"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`
}

// DisplayName prefers the guild nickname over the account username.
func (m Member) DisplayName(fallback User) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil && m.User.Username != "" {
		return m.User.Username
	}
	return fallback.Username
}
