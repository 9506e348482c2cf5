package gateway

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/emberwake/relaygate/src/structs"
)

type GatewayIntent = int

// https://discord.com/developers/docs/events/gateway#gateway-intents
const (
	GuildsIntent         GatewayIntent = 1 << 0
	GuildMessagesIntent  GatewayIntent = 1 << 9
	MessageContentIntent GatewayIntent = 1 << 15
)

type GatewayOpcode = int

// https://discord.com/developers/docs/topics/opcodes-and-status-codes#gateway-gateway-opcodes
const (
	OpcodeDispatch       GatewayOpcode = 0
	OpcodeHeartbeat      GatewayOpcode = 1
	OpcodeIdentify       GatewayOpcode = 2
	OpcodeResume         GatewayOpcode = 6
	OpcodeReconnect      GatewayOpcode = 7
	OpcodeInvalidSession GatewayOpcode = 9
	OpcodeHello          GatewayOpcode = 10
	OpcodeHeartbeatAck   GatewayOpcode = 11
)

type EventName = string

const (
	EventReady         EventName = "READY"
	EventResumed       EventName = "RESUMED"
	EventGuildCreate   EventName = "GUILD_CREATE"
	EventMessageCreate EventName = "MESSAGE_CREATE"
)

type GatewayStatus = string

const (
	StatusDisconnected  GatewayStatus = "DISCONNECTED"
	StatusConnecting    GatewayStatus = "CONNECTING"
	StatusAwaitingHello GatewayStatus = "AWAITING_HELLO"
	StatusIdentifying   GatewayStatus = "IDENTIFYING"
	StatusResuming      GatewayStatus = "RESUMING"
	StatusReady         GatewayStatus = "READY"
	StatusClosing       GatewayStatus = "CLOSING"
)

// Inbound wire envelope. D stays raw until the opcode/name is known.
type RawEvent struct {
	Op GatewayOpcode       `json:"op"`
	S  *int64              `json:"s"`
	T  EventName           `json:"t"`
	D  jsoniter.RawMessage `json:"d"`
}

// Outbound wire envelope.
type Event struct {
	Op GatewayOpcode `json:"op"`
	D  any           `json:"d"`
}

type HelloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type IdentifyProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type IdentifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
}

type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type ReadyData struct {
	SessionID        string       `json:"session_id"`
	ResumeGatewayURL string       `json:"resume_gateway_url"`
	User             structs.User `json:"user"`
}

// ClosureConfirmation is produced exactly once per connection lifetime
// and consumed by the reconnect decision.
type ClosureConfirmation struct {
	Code              int
	Reason            string
	RequestedByCaller bool
}
