package structs

// https://discord.com/developers/docs/topics/permissions#role-object
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Position int    `json:"position"`
}

// Partial guild as delivered by the GUILD_CREATE dispatch. Only the
// fields the relay consumes; everything else is ignored on decode.
// https://discord.com/developers/docs/resources/guild#guild-object
type Guild struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Roles []Role `json:"roles"`
}
