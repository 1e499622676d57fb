package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
	"github.com/nerrad567/homedash-core/internal/control"
	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/infrastructure/logging"
	"github.com/nerrad567/homedash-core/internal/session"
)

// resolveTimeout bounds token resolution for an auth message.
const resolveTimeout = 5 * time.Second

// Intent actions accepted in an intent message.
const (
	ActionToggleLight = "toggle_light"
	ActionToggleFan   = "toggle_fan"
	ActionSetSpeed    = "set_speed"
)

// WSAuthPayload is the payload of an auth message.
type WSAuthPayload struct {
	AccessToken string `json:"access_token"`
}

// WSOpenPayload is the payload of an open message. An empty theme keeps
// the current one.
type WSOpenPayload struct {
	View  string `json:"view"`
	Theme string `json:"theme,omitempty"`
}

// WSIntentPayload is the payload of an intent message.
type WSIntentPayload struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
	Fan    string `json:"fan,omitempty"`
	Speed  *int   `json:"speed,omitempty"`
}

// WSDismissPayload is the payload of a dismiss message.
type WSDismissPayload struct {
	ID string `json:"id"`
}

// WSClient is one WebSocket connection. It owns a session gate, routes
// the requested view against it and keeps at most one control surface
// open, rebuilt whenever the routed view or its environment changes.
//
// Thread Safety:
//   - readPump is the only caller of handleMessage.
//   - viewMu guards the view state; bindMu guards the session binding.
type WSClient struct {
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	logger *logging.Logger

	send   chan []byte
	frames chan []byte // capacity one, latest frame wins

	subscriptions map[string]struct{}
	mu            sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	gate      *session.Gate
	watch     <-chan session.Snapshot
	stopWatch func()
	settle    *time.Timer

	viewMu    sync.Mutex
	closed    bool
	theme     control.Theme
	requested session.View
	routed    session.View
	routedEnv control.Env
	surface   control.Surface

	bindMu  sync.Mutex
	binding *session.Binding

	work sync.WaitGroup
}

func newWSClient(s *Server, conn *websocket.Conn) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	gate := session.NewGate()
	watch, stopWatch := gate.Watch()

	return &WSClient{
		hub:           s.hub,
		server:        s,
		conn:          conn,
		logger:        s.logger.With("remote", conn.RemoteAddr().String()),
		send:          make(chan []byte, wsSendBufferSize),
		frames:        make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelStoreStatus: {}},
		ctx:           ctx,
		cancel:        cancel,
		gate:          gate,
		watch:         watch,
		stopWatch:     stopWatch,
		settle:        time.AfterFunc(time.Duration(s.wsCfg.AuthWait)*time.Second, gate.Settle),
		theme:         control.ThemeLight,
	}
}

// watchSession forwards every gate transition to the client and reroutes.
// It returns when the watch is stopped.
func (c *WSClient) watchSession() {
	for snap := range c.watch {
		c.sendEvent(EventSession, map[string]any{
			"state":     snap.State,
			"user":      snap.Principal.Name(),
			"principal": snap.Principal,
		})

		c.viewMu.Lock()
		c.reroute()
		c.viewMu.Unlock()
	}
}

// reroute brings the open surface in line with the requested view and the
// current session. Must be called with viewMu held.
func (c *WSClient) reroute() {
	if c.closed || c.requested == "" {
		return
	}

	snap := c.gate.Snapshot()
	target := session.Route(c.requested, snap)
	env := control.Env{Principal: snap.Principal, Theme: c.theme}

	if c.surface != nil && (session.View(c.surface.View()) != target || c.surface.Env() != env) {
		c.surface.Close()
		c.surface = nil
	}

	if target != c.routed || env != c.routedEnv {
		c.routed, c.routedEnv = target, env
		c.sendEvent(EventView, map[string]any{
			"view":      target,
			"requested": c.requested,
			"theme":     env.Theme,
		})
	}

	if c.surface != nil || !target.Gated() {
		return
	}

	sf, err := control.New(control.View(target), c.server.surfaceDeps(), env, c.pushFrame)
	if err != nil {
		c.logger.Error("building surface failed", "view", target, "error", err)
		c.sendError("", ErrCodeInternal, "view not available")
		return
	}
	if err := sf.Open(c.ctx); err != nil {
		sf.Close()
		c.logger.Warn("opening surface failed", "view", target, "error", err)
		code, message := controlErrorCode(err)
		c.sendError("", code, message)
		return
	}
	c.surface = sf
}

// pushFrame is the render callback of every surface. It replaces any
// frame the write pump has not sent yet.
func (c *WSClient) pushFrame(f control.Frame) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventFrame,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   f,
	})
	if err != nil {
		c.logger.Error("failed to marshal frame", "view", f.View, "error", err)
		return
	}
	select {
	case <-c.frames:
	default:
	}
	select {
	case c.frames <- data:
	default:
	}
}

// handleMessage dispatches one client message.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", ErrCodeBadRequest, "invalid message format")
		return
	}

	switch req.Type {
	case WSTypeAuth:
		var p WSAuthPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil || p.AccessToken == "" {
			c.sendError(req.ID, ErrCodeBadRequest, "access_token is required")
			return
		}
		c.authenticate(req.ID, p.AccessToken)

	case WSTypeOpen:
		c.handleOpen(req)

	case WSTypeIntent:
		var p WSIntentPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			c.sendError(req.ID, ErrCodeBadRequest, "invalid intent payload")
			return
		}
		c.work.Go(func() { c.runIntent(req.ID, p) })

	case WSTypeDismiss:
		var p WSDismissPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil || p.ID == "" {
			c.sendError(req.ID, ErrCodeBadRequest, "notice id is required")
			return
		}
		sf := c.currentSurface()
		if sf == nil {
			c.sendError(req.ID, ErrCodeBadRequest, "no control view open")
			return
		}
		if err := sf.Dismiss(p.ID); err != nil {
			c.sendError(req.ID, ErrCodeBadRequest, "view closed")
			return
		}
		c.sendResponse(req.ID, WSTypeResponse, map[string]any{"ok": true})

	case WSTypeLogout:
		c.logout(req.ID)

	case WSTypeSubscribe:
		var p WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			c.sendError(req.ID, ErrCodeBadRequest, "invalid subscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range p.Channels {
			c.subscriptions[ch] = struct{}{}
		}
		c.mu.Unlock()
		c.sendResponse(req.ID, WSTypeResponse, map[string]any{"subscribed": p.Channels})

	case WSTypeUnsubscribe:
		var p WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			c.sendError(req.ID, ErrCodeBadRequest, "invalid unsubscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range p.Channels {
			delete(c.subscriptions, ch)
		}
		c.mu.Unlock()
		c.sendResponse(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})

	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)

	default:
		c.sendError(req.ID, ErrCodeBadRequest, "unknown message type: "+req.Type)
	}
}

// authenticate binds the gate to accessToken, replacing any earlier
// binding. A failed token signs the client out.
func (c *WSClient) authenticate(id, accessToken string) {
	ctx, cancel := context.WithTimeout(c.ctx, resolveTimeout)
	defer cancel()

	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	if c.binding != nil {
		c.binding.Stop()
		c.binding = nil
	}
	b, err := session.Bind(ctx, c.gate, c.server.auth, accessToken)
	c.settle.Stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Debug("websocket auth rejected", "error", err)
		}
		c.sendError(id, ErrCodeUnauthorized, "invalid or expired token")
		return
	}
	c.binding = b

	identity := b.Identity()
	c.sendResponse(id, WSTypeResponse, map[string]any{
		"user":        identity.Principal.Name(),
		"principal":   identity.Principal,
		"session_id":  identity.SessionID,
		"permissions": auth.PermissionsForRole(auth.Role(identity.Principal.Role)),
	})
}

// handleOpen records the requested view and routes it.
func (c *WSClient) handleOpen(req wsRequest) {
	var p WSOpenPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		c.sendError(req.ID, ErrCodeBadRequest, "invalid open payload")
		return
	}
	view, err := session.ParseView(p.View)
	if err != nil {
		c.sendError(req.ID, ErrCodeValidation, err.Error())
		return
	}

	c.viewMu.Lock()
	c.requested = view
	if p.Theme != "" {
		c.theme = control.ParseTheme(p.Theme)
	}
	c.reroute()
	routed := c.routed
	c.viewMu.Unlock()

	c.sendResponse(req.ID, WSTypeResponse, map[string]any{
		"view":      routed,
		"requested": view,
	})
}

// runIntent applies one intent to the open surface and reports the
// outcome once the store has answered.
func (c *WSClient) runIntent(id string, p WSIntentPayload) {
	sf := c.currentSurface()
	if sf == nil {
		c.sendError(id, ErrCodeBadRequest, "no control view open")
		return
	}

	var err error
	switch p.Action {
	case ActionToggleLight:
		lights, ok := sf.(*control.Lights)
		if !ok {
			c.sendError(id, ErrCodeBadRequest, "toggle_light needs the lights view")
			return
		}
		err = lights.Toggle(c.ctx, p.Room)
	case ActionToggleFan:
		fans, ok := sf.(*control.Fans)
		if !ok {
			c.sendError(id, ErrCodeBadRequest, "toggle_fan needs the fan view")
			return
		}
		err = fans.Toggle(c.ctx, p.Fan)
	case ActionSetSpeed:
		fans, ok := sf.(*control.Fans)
		if !ok {
			c.sendError(id, ErrCodeBadRequest, "set_speed needs the fan view")
			return
		}
		if p.Speed == nil {
			c.sendError(id, ErrCodeBadRequest, "speed is required")
			return
		}
		err = fans.SetSpeed(c.ctx, p.Fan, *p.Speed)
	default:
		c.sendError(id, ErrCodeBadRequest, "unknown action: "+p.Action)
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}
	target := p.Fan
	if p.Action == ActionToggleLight {
		target = p.Room
	}
	var speed *int
	if p.Action == ActionSetSpeed {
		speed = p.Speed
	}
	c.server.auditIntent(audit.SourceWebSocket, p.Action, c.userID(), target, speed, err)

	if err != nil {
		code, message := controlErrorCode(err)
		c.sendError(id, code, message)
		return
	}
	c.sendResponse(id, WSTypeResponse, map[string]any{"ok": true, "action": p.Action})
}

// logout ends the bound session and routes the client to login. Other
// clients on the same session follow through the provider.
func (c *WSClient) logout(id string) {
	c.bindMu.Lock()
	b := c.binding
	c.binding = nil
	c.bindMu.Unlock()

	if b != nil {
		b.Stop()
		ident := b.Identity()
		if err := c.server.auth.SignOut(c.ctx, ident.SessionID); err != nil {
			c.logger.Error("websocket sign out failed", "error", err)
			c.sendError(id, ErrCodeInternal, "failed to sign out")
			return
		}
		c.server.auditLog(&audit.Entry{
			Action:     audit.ActionLogout,
			EntityType: audit.EntitySession,
			EntityID:   ident.SessionID,
			UserID:     ident.Principal.UserID,
			Source:     audit.SourceWebSocket,
		})
	}
	c.settle.Stop()
	c.gate.Clear()
	c.sendResponse(id, WSTypeResponse, map[string]any{"ok": true})
}

// userID returns the bound user, or "" when signed out.
func (c *WSClient) userID() string {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	if c.binding == nil {
		return ""
	}
	return c.binding.Identity().Principal.UserID
}

func (c *WSClient) currentSurface() control.Surface {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.surface
}

// shutdown releases everything the client holds. Only readPump calls it.
func (c *WSClient) shutdown() {
	c.cancel()
	c.settle.Stop()

	c.viewMu.Lock()
	c.closed = true
	sf := c.surface
	c.surface = nil
	c.viewMu.Unlock()
	if sf != nil {
		sf.Close()
	}

	c.work.Wait()

	c.bindMu.Lock()
	if c.binding != nil {
		c.binding.Stop()
		c.binding = nil
	}
	c.bindMu.Unlock()
	c.stopWatch()

	c.hub.Unregister(c)
	c.conn.Close()
}

// controlErrorCode maps a surface or store error to a WebSocket error code
// and message, using the same vocabulary as writeControlError.
func controlErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, device.ErrRoomNotFound), errors.Is(err, device.ErrFanNotFound):
		return ErrCodeNotFound, err.Error()
	case errors.Is(err, device.ErrInvalidSpeed):
		return ErrCodeValidation, err.Error()
	case errors.Is(err, control.ErrUnauthenticated):
		return ErrCodeUnauthorized, "sign in required"
	case errors.Is(err, control.ErrClosed), errors.Is(err, control.ErrNotOpen):
		return ErrCodeBadRequest, "view closed"
	}

	switch control.Classify(err) {
	case control.NoticeAccessDenied:
		return ErrCodeAccessDenied, "your account is not allowed to change this device"
	case control.NoticeUnavailable:
		return ErrCodeUnavailable, "device service unavailable"
	case control.NoticeTimeout:
		return ErrCodeTimeout, "device did not respond in time"
	default:
		return ErrCodeInternal, "request failed"
	}
}
