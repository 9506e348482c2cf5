package structs

// https://discord.com/developers/docs/resources/channel#allowed-mentions-object
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// NoMentions suppresses every mention type in a relayed message so game
// chat can never ping Discord members.
func NoMentions() *AllowedMentions {
	return &AllowedMentions{Parse: []string{}}
}

// https://discord.com/developers/docs/resources/webhook#execute-webhook
type WebhookMessage struct {
	Content         string           `json:"content,omitempty"`
	Username        string           `json:"username,omitempty"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	Embeds          []Embed          `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}
