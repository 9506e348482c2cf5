package structs

// https://discord.com/developers/docs/resources/message
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	GuildID   string  `json:"guild_id,omitempty"`
	Author    User    `json:"author"`
	Member    *Member `json:"member,omitempty"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	Type      int     `json:"type"`
}
