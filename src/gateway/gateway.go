package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-csync"

	"github.com/emberwake/relaygate/src/rest"
	"github.com/emberwake/relaygate/src/structs"
	"github.com/emberwake/relaygate/src/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrConnect      = errors.New("failed to establish gateway connection")
	ErrNoConnection = errors.New("gateway is not connected")
)

const closeFrameTimeout = 5 * time.Second

// Bridge receives chat messages that survived dispatch filtering.
type Bridge interface {
	RelayChat(ctx context.Context, msg RelayedMessage)
}

// RelayedMessage is a guild chat message resolved against the member
// and role tables, ready for the game side.
type RelayedMessage struct {
	AuthorName      string
	AuthorAvatarURL string
	Content         string
	Color           int
	HasColor        bool
}

// Snapshot of the session, exposed to the status server.
type SessionInfo struct {
	Status           GatewayStatus `json:"status"`
	SessionID        string        `json:"session_id,omitempty"`
	Sequence         int64         `json:"sequence"`
	ReconnectAttempt int           `json:"reconnect_attempt"`
}

type Arguments struct {
	Config utils.AppConfig
	Rest   *rest.Client
	Bridge Bridge
	Logger zerolog.Logger
}

// Gateway owns the duplex connection to Discord: at most one live
// connection at a time, a heartbeat supervisor per connection, and a
// reconnect loop that decides between Resume and a fresh Identify.
type Gateway struct {
	mu     sync.RWMutex
	sendMu csync.Mutex

	wsDialer *websocket.Dialer
	wsConn   *websocket.Conn

	wsURL            string
	resumeGatewayURL string
	sessionID        string
	ownUserID        string
	sequence         atomic.Int64
	shouldResume     bool
	status           GatewayStatus

	closure   chan ClosureConfirmation
	closeOnce *sync.Once

	heartbeat   *heartbeatSupervisor
	hbCancel    context.CancelFunc
	reconnector *reconnector

	ctx    context.Context
	rest   *rest.Client
	bridge Bridge
	roles  *RoleCache
	cfg    utils.AppConfig
	log    zerolog.Logger
}

func NewGateway(args Arguments) *Gateway {
	g := &Gateway{
		wsDialer:    websocket.DefaultDialer,
		status:      StatusDisconnected,
		reconnector: newReconnector(),
		rest:        args.Rest,
		bridge:      args.Bridge,
		roles:       NewRoleCache(),
		cfg:         args.Config,
		log:         args.Logger,
	}
	g.sequence.Store(-1)
	return g
}

// Run keeps the session alive until ctx is cancelled: open, wait for the
// closure confirmation, compute the backoff delay and reopen. Only a
// caller requested teardown leaves the loop.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx
	for {
		if err := g.ensureURL(ctx); err != nil {
			g.log.Error().Err(err).Msg("failed to fetch gateway url")
		} else if err := g.Open(ctx); err != nil {
			g.log.Error().Err(err).Msg("failed to connect to gateway")
		} else {
			confirmation, err := g.AwaitClosure(ctx)
			if err != nil {
				// Host shutdown: clean teardown, no reconnect.
				g.Close(websocket.CloseNormalClosure, "relay shutting down", true)
				return nil
			}
			if confirmation.RequestedByCaller {
				return nil
			}
			g.log.Warn().
				Int("code", confirmation.Code).
				Str("reason", confirmation.Reason).
				Msg("gateway connection closed")
		}

		delay := g.reconnector.nextDelay()
		g.log.Info().Dur("delay", delay).Int("attempt", g.reconnector.attempts()).Msg("reconnecting to gateway")
		select {
		case <-ctx.Done():
			g.Close(websocket.CloseNormalClosure, "relay shutting down", true)
			return nil
		case <-time.After(delay):
		}

		g.mu.Lock()
		if !g.shouldResume {
			// Fresh identify goes through URL discovery again.
			g.wsURL = ""
		}
		g.mu.Unlock()
	}
}

func (g *Gateway) ensureURL(ctx context.Context) error {
	g.mu.RLock()
	known := g.wsURL != ""
	g.mu.RUnlock()
	if known {
		return nil
	}
	fetched, err := g.rest.GatewayURL(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.wsURL = fetched
	g.mu.Unlock()
	return nil
}

// Open dials a new duplex connection, synchronously superseding any
// existing one first. Run calls this on every cycle; direct callers must
// arrange their own closure handling.
func (g *Gateway) Open(ctx context.Context) error {
	if g.ctx == nil {
		g.ctx = ctx
	}
	g.mu.RLock()
	alive := g.wsConn != nil
	g.mu.RUnlock()
	if alive {
		g.closeConnection(websocket.CloseGoingAway, "superseded by new connection", false)
	}

	g.mu.Lock()
	g.status = StatusConnecting
	base := g.wsURL
	if g.shouldResume && g.resumeGatewayURL != "" {
		base = g.resumeGatewayURL
	}
	g.mu.Unlock()

	connectURL, err := buildConnectURL(base, g.cfg.APIVersion)
	if err != nil {
		g.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	g.log.Info().Str("url", connectURL).Msg("connecting to gateway")

	conn, _, err := g.wsDialer.DialContext(ctx, connectURL, nil)
	if err != nil {
		g.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	g.mu.Lock()
	g.wsConn = conn
	g.closure = make(chan ClosureConfirmation, 1)
	g.closeOnce = new(sync.Once)
	g.status = StatusAwaitingHello
	g.mu.Unlock()

	go g.listen(conn)
	return nil
}

func buildConnectURL(base string, apiVersion int) (string, error) {
	if base == "" {
		return "", errors.New("no gateway url")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	parsed.RawQuery = fmt.Sprintf("v=%d&encoding=json", apiVersion)
	return parsed.String(), nil
}

// Close tears down the live connection and resolves the closure
// confirmation. Transport errors while sending the close frame are
// logged, never surfaced.
func (g *Gateway) Close(code int, reason string, requestedByCaller bool) {
	g.closeConnection(code, reason, requestedByCaller)
}

// AwaitClosure suspends the caller until the current connection's
// ClosureConfirmation is produced.
func (g *Gateway) AwaitClosure(ctx context.Context) (ClosureConfirmation, error) {
	g.mu.RLock()
	ch := g.closure
	g.mu.RUnlock()
	if ch == nil {
		return ClosureConfirmation{}, ErrNoConnection
	}
	select {
	case <-ctx.Done():
		return ClosureConfirmation{}, ctx.Err()
	case confirmation := <-ch:
		return confirmation, nil
	}
}

func (g *Gateway) closeConnection(code int, reason string, requestedByCaller bool) {
	g.mu.Lock()
	conn := g.wsConn
	g.wsConn = nil
	cancel := g.hbCancel
	g.hbCancel = nil
	g.heartbeat = nil
	once := g.closeOnce
	closure := g.closure
	if conn != nil {
		g.status = StatusClosing
	}
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		frame := websocket.FormatCloseMessage(code, reason)
		if err := conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(closeFrameTimeout)); err != nil {
			g.log.Debug().Err(err).Msg("failed to send close frame")
		}
		conn.Close()
	}
	g.resolve(once, closure, ClosureConfirmation{Code: code, Reason: reason, RequestedByCaller: requestedByCaller})
	g.setStatus(StatusDisconnected)
}

func (g *Gateway) resolve(once *sync.Once, closure chan ClosureConfirmation, confirmation ClosureConfirmation) {
	if once == nil || closure == nil {
		return
	}
	once.Do(func() {
		closure <- confirmation
	})
}

func (g *Gateway) listen(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.mu.RLock()
			same := g.wsConn == conn
			g.mu.RUnlock()
			if !same {
				// Closed or superseded locally; confirmation already resolved.
				return
			}
			g.handleReadError(err)
			return
		}
		g.mu.RLock()
		same := g.wsConn == conn
		g.mu.RUnlock()
		if !same {
			return
		}
		g.processEvent(message)
	}
}

// handleReadError turns a transport failure or a server sent close frame
// into a closure confirmation, preserving resumability when the session
// identity is intact.
func (g *Gateway) handleReadError(err error) {
	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	}
	g.mu.Lock()
	g.shouldResume = canResume(g.sessionID, g.sequence.Load(), false)
	g.mu.Unlock()
	g.closeConnection(code, reason, false)
}

// processEvent parses one inbound frame. The sequence number is
// committed before any handler that depends on it runs.
func (g *Gateway) processEvent(message []byte) {
	var event RawEvent
	if err := json.Unmarshal(message, &event); err != nil {
		g.protocolViolation(fmt.Sprintf("unparseable frame: %v", err))
		return
	}
	if event.S != nil && *event.S > g.sequence.Load() {
		g.sequence.Store(*event.S)
	}

	switch event.Op {
	case OpcodeDispatch:
		g.onDispatch(event)
	case OpcodeHeartbeat:
		g.withHeartbeat(func(hb *heartbeatSupervisor) { hb.demand() })
	case OpcodeHeartbeatAck:
		g.withHeartbeat(func(hb *heartbeatSupervisor) { hb.ack() })
	case OpcodeReconnect:
		g.log.Info().Msg("server requested reconnect")
		g.mu.Lock()
		g.shouldResume = true
		g.mu.Unlock()
		g.closeConnection(websocket.CloseGoingAway, "told to reconnect", false)
	case OpcodeInvalidSession:
		g.onInvalidSession(event)
	case OpcodeHello:
		g.onHello(event)
	default:
		g.log.Debug().Int("op", event.Op).Msg("ignoring unknown opcode")
	}
}

func (g *Gateway) onHello(event RawEvent) {
	var hello HelloData
	if err := json.Unmarshal(event.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		g.protocolViolation("hello missing heartbeat interval")
		return
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	g.startHeartbeat(interval)

	g.mu.Lock()
	resume := g.shouldResume && canResume(g.sessionID, g.sequence.Load(), false)
	// Spent either way: a later unrelated reconnect must not reuse
	// stale intent.
	g.shouldResume = false
	token := g.cfg.BotToken
	sessionID := g.sessionID
	if resume {
		g.status = StatusResuming
	} else {
		g.sessionID = ""
		g.resumeGatewayURL = ""
		g.sequence.Store(-1)
		g.status = StatusIdentifying
	}
	seq := g.sequence.Load()
	g.mu.Unlock()

	var err error
	if resume {
		g.log.Info().Str("session_id", sessionID).Int64("seq", seq).Msg("resuming session")
		err = g.sendEvent(g.ctx, OpcodeResume, ResumeData{Token: token, SessionID: sessionID, Seq: seq})
	} else {
		g.log.Info().Msg("identifying new session")
		err = g.sendEvent(g.ctx, OpcodeIdentify, IdentifyData{
			Token:   token,
			Intents: GuildsIntent | GuildMessagesIntent | MessageContentIntent,
			Properties: IdentifyProperties{
				Os:      "linux",
				Browser: "relaygate",
				Device:  "relaygate",
			},
		})
	}
	if err != nil {
		g.log.Error().Err(err).Msg("handshake send failed")
	}
}

func (g *Gateway) onInvalidSession(event RawEvent) {
	var resumable bool
	if err := json.Unmarshal(event.D, &resumable); err != nil {
		resumable = false
	}
	g.log.Warn().Bool("resumable", resumable).Msg("session invalidated by server")
	g.mu.Lock()
	g.shouldResume = resumable
	if !resumable {
		g.sessionID = ""
		g.resumeGatewayURL = ""
		g.sequence.Store(-1)
	}
	g.mu.Unlock()
	g.closeConnection(websocket.CloseGoingAway, "invalid session", false)
}

func (g *Gateway) onDispatch(event RawEvent) {
	switch event.T {
	case EventReady:
		g.onReady(event)
	case EventResumed:
		g.log.Info().Msg("session resumed")
		g.setStatus(StatusReady)
		g.reconnector.reset()
	case EventGuildCreate:
		g.onGuildCreate(event)
	case EventMessageCreate:
		g.onMessageCreate(event)
	default:
		g.log.Debug().Str("event", event.T).Msg("ignoring dispatch")
	}
}

func (g *Gateway) onReady(event RawEvent) {
	var ready ReadyData
	if err := json.Unmarshal(event.D, &ready); err != nil || ready.SessionID == "" {
		g.protocolViolation("ready missing session id")
		return
	}
	g.mu.Lock()
	g.sessionID = ready.SessionID
	g.resumeGatewayURL = ready.ResumeGatewayURL
	g.ownUserID = ready.User.ID
	g.status = StatusReady
	g.mu.Unlock()
	g.reconnector.reset()
	g.log.Info().
		Str("session_id", ready.SessionID).
		Str("resume_url", ready.ResumeGatewayURL).
		Str("user_id", ready.User.ID).
		Msg("gateway is ready")
}

func (g *Gateway) onGuildCreate(event RawEvent) {
	var guild structs.Guild
	if err := json.Unmarshal(event.D, &guild); err != nil {
		g.log.Warn().Err(err).Msg("undecodable guild create")
		return
	}
	if guild.ID != g.cfg.GuildID {
		return
	}
	g.roles.Replace(guild.Roles)
	g.log.Info().Str("guild_id", guild.ID).Int("roles", g.roles.Len()).Msg("rebuilt role cache")
}

// onMessageCreate filters guild chat down to what the game side should
// see and forwards survivors to the bridge. Drop order: wrong channel,
// blank content, bot or system author, our own messages (echo loop).
func (g *Gateway) onMessageCreate(event RawEvent) {
	var msg structs.Message
	if err := json.Unmarshal(event.D, &msg); err != nil {
		g.log.Warn().Err(err).Msg("undecodable message create")
		return
	}
	if msg.ChannelID != g.cfg.ChannelID {
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	if msg.Author.Bot || msg.Author.System {
		return
	}
	g.mu.RLock()
	ownUserID := g.ownUserID
	g.mu.RUnlock()
	if msg.Author.ID == ownUserID {
		return
	}
	if g.bridge == nil {
		return
	}

	relayed := RelayedMessage{
		AuthorName:      msg.Author.Username,
		AuthorAvatarURL: msg.Author.AvatarURL(),
		Content:         msg.Content,
	}
	if msg.Member != nil {
		relayed.AuthorName = msg.Member.DisplayName(msg.Author)
		relayed.Color, relayed.HasColor = g.roles.ColorFor(msg.Member.Roles)
	}
	go g.bridge.RelayChat(g.ctx, relayed)
}

// protocolViolation is fatal to the connection but not the process: the
// session identity is discarded so the next cycle identifies afresh.
func (g *Gateway) protocolViolation(reason string) {
	g.log.Error().Str("reason", reason).Msg("gateway protocol violation")
	g.mu.Lock()
	g.shouldResume = false
	g.sessionID = ""
	g.resumeGatewayURL = ""
	g.sequence.Store(-1)
	g.mu.Unlock()
	g.closeConnection(websocket.CloseProtocolError, reason, false)
}

func (g *Gateway) startHeartbeat(interval time.Duration) {
	ctx, cancel := context.WithCancel(g.ctx)
	hb := newHeartbeatSupervisor(interval, g.cfg.HeartbeatAckTimeout, g.sendHeartbeat, g.onHeartbeatTimeout, g.log)
	g.mu.Lock()
	if g.hbCancel != nil {
		g.hbCancel()
	}
	g.hbCancel = cancel
	g.heartbeat = hb
	g.mu.Unlock()
	go hb.run(ctx)
}

func (g *Gateway) withHeartbeat(fn func(hb *heartbeatSupervisor)) {
	g.mu.RLock()
	hb := g.heartbeat
	g.mu.RUnlock()
	if hb != nil {
		fn(hb)
	}
}

func (g *Gateway) sendHeartbeat() error {
	var d any
	if seq := g.sequence.Load(); seq >= 0 {
		d = seq
	}
	return g.sendEvent(g.ctx, OpcodeHeartbeat, d)
}

func (g *Gateway) onHeartbeatTimeout() {
	g.mu.Lock()
	g.shouldResume = canResume(g.sessionID, g.sequence.Load(), false)
	g.mu.Unlock()
	g.closeConnection(websocket.CloseProtocolError, "heartbeat ack timeout", false)
}

// sendEvent marshals and writes one outbound frame. A single send owns
// the whole frame; the context aware lock keeps teardown from hanging on
// a stuck write.
func (g *Gateway) sendEvent(ctx context.Context, op GatewayOpcode, d any) error {
	data, err := json.Marshal(Event{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway event: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := g.sendMu.CLock(ctx); err != nil {
		return err
	}
	defer g.sendMu.Unlock()
	g.mu.RLock()
	conn := g.wsConn
	g.mu.RUnlock()
	if conn == nil {
		return ErrNoConnection
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gateway) setStatus(status GatewayStatus) {
	g.mu.Lock()
	g.status = status
	g.mu.Unlock()
}

// Session exposes a point in time snapshot for diagnostics.
func (g *Gateway) Session() SessionInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return SessionInfo{
		Status:           g.status,
		SessionID:        g.sessionID,
		Sequence:         g.sequence.Load(),
		ReconnectAttempt: g.reconnector.attempts(),
	}
}
