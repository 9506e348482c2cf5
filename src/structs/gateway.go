package structs

// https://discord.com/developers/docs/topics/gateway#get-gateway-bot
// Shards & session_start_limit are ignored.
type GatewayBot struct {
	URL string `json:"url"`
}

// Body of a 429 response.
// https://discord.com/developers/docs/topics/rate-limits#exceeding-a-rate-limit-rate-limit-response-structure
type RateLimit struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
