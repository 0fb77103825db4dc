// Package ws is the duplex control and data channel: clients drive
// recording sessions and stream audio fragments in, and receive live
// transcript and status events out.
//
// One goroutine per connection reads and dispatches messages; writes are
// serialised by a per-connection mutex because fan-out deliveries arrive
// from pipeline goroutines. A ping is sent every PingInterval; clients
// reply with pong.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agnij-dutta/attack-capital/internal/fanout"
	"github.com/agnij-dutta/attack-capital/internal/session"
)

// writeTimeout bounds a single outbound message write.
const writeTimeout = 5 * time.Second

// maxMessageBytes is the inbound message size limit. Audio fragments
// arrive base64-encoded, so this comfortably covers multi-megabyte
// recorder bursts.
const maxMessageBytes = 16 << 20

// errBufferOverflowMessage is the exact client-facing text for a rejected
// oversized session.
const errBufferOverflowMessage = "Buffer overflow: Session exceeds maximum size"

// Handler upgrades HTTP requests to the duplex channel.
type Handler struct {
	manager      *session.Manager
	hub          *fanout.Hub
	pingInterval time.Duration
}

// NewHandler creates a Handler. pingInterval <= 0 defaults to 10s.
func NewHandler(manager *session.Manager, hub *fanout.Hub, pingInterval time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &Handler{manager: manager, hub: hub, pingInterval: pingInterval}
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c.SetReadLimit(maxMessageBytes)

	conn := &clientConn{
		ws:      c,
		handler: h,
		subs:    make(map[string]func()),
	}
	defer conn.close()
	conn.run(r.Context())
}

// clientConn is the per-connection state.
type clientConn struct {
	ws      *websocket.Conn
	handler *Handler

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]func()
}

// run reads and dispatches messages until the connection drops.
func (c *clientConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.pingLoop(ctx)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			slog.Debug("websocket read ended", "err", err)
			return
		}

		var msg clientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(ctx, "Malformed message")
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *clientConn) dispatch(ctx context.Context, msg clientMsg) {
	switch msg.Type {
	case typeStartRecording:
		c.handleStart(ctx, msg)
	case typeAudioChunk:
		c.handleAudioChunk(ctx, msg)
	case typePauseRecording:
		c.reply(ctx, msg.SessionID, typeRecordingPaused,
			c.handler.manager.Pause(ctx, msg.SessionID))
	case typeResumeRecording:
		c.reply(ctx, msg.SessionID, typeRecordingResumed,
			c.handler.manager.Resume(ctx, msg.SessionID))
	case typeStopRecording:
		c.handleStop(ctx, msg)
	case typeCancelRecording:
		c.reply(ctx, msg.SessionID, typeRecordingCancelled,
			c.handler.manager.Cancel(ctx, msg.SessionID))
	case typeJoinSession:
		c.subscribe(msg.SessionID)
	case typeGetSessionState:
		c.handleGetState(ctx, msg)
	case typePong:
		// Liveness acknowledged.
	default:
		c.sendError(ctx, fmt.Sprintf("Unknown message type %q", msg.Type))
	}
}

func (c *clientConn) handleStart(ctx context.Context, msg clientMsg) {
	if msg.UserID == "" {
		c.sendError(ctx, "start-recording requires userId")
		return
	}
	res, err := c.handler.manager.Start(ctx, msg.SessionID, msg.UserID, msg.Title)
	if err != nil {
		c.sendError(ctx, clientErrorText(err))
		return
	}
	c.subscribe(res.SessionID)
	c.send(ctx, serverMsg{Type: typeRecordingStarted, SessionID: res.SessionID})
}

func (c *clientConn) handleAudioChunk(ctx context.Context, msg clientMsg) {
	payload, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		c.sendError(ctx, "audio-chunk carries invalid base64 audioData")
		return
	}
	energy := -1.0
	if msg.AudioLevel != nil {
		energy = *msg.AudioLevel
	}
	err = c.handler.manager.AddFragment(ctx, msg.SessionID, payload, msg.MIMEType, energy, msg.ChunkID)
	if err != nil {
		c.sendError(ctx, clientErrorText(err))
		return
	}
	c.send(ctx, serverMsg{Type: typeChunkReceived, SessionID: msg.SessionID, ChunkID: msg.ChunkID})
}

func (c *clientConn) handleStop(ctx context.Context, msg clientMsg) {
	res, err := c.handler.manager.Stop(ctx, msg.SessionID)
	if err != nil {
		c.sendError(ctx, clientErrorText(err))
		return
	}
	c.send(ctx, serverMsg{
		Type:       typeRecordingCompleted,
		SessionID:  res.SessionID,
		Transcript: res.Transcript,
		Summary:    res.Summary,
	})
}

func (c *clientConn) handleGetState(ctx context.Context, msg clientMsg) {
	snap, err := c.handler.manager.GetSnapshot(ctx, msg.SessionID)
	if err != nil {
		c.sendError(ctx, clientErrorText(err))
		return
	}
	c.send(ctx, serverMsg{
		Type:      typeSessionState,
		SessionID: snap.Session.ID,
		State: &sessionState{
			SessionID:     snap.Session.ID,
			UserID:        snap.Session.UserID,
			Title:         snap.Session.Title,
			Status:        snap.Session.Status,
			CreatedAt:     snap.Session.CreatedAt,
			ChunkCount:    snap.ChunkCount,
			BufferedBytes: snap.BufferedBytes,
		},
	})
}

// reply sends the ack type on success or maps err to a client error.
func (c *clientConn) reply(ctx context.Context, sessionID, ackType string, err error) {
	if err != nil {
		c.sendError(ctx, clientErrorText(err))
		return
	}
	c.send(ctx, serverMsg{Type: ackType, SessionID: sessionID})
}

// subscribe registers the connection for a session's events. Subscribing
// twice to the same session is a no-op.
func (c *clientConn) subscribe(sessionID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, ok := c.subs[sessionID]; ok {
		return
	}
	c.subs[sessionID] = c.handler.hub.Subscribe(sessionID, (*connSubscriber)(c))
}

func (c *clientConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.handler.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.send(ctx, serverMsg{Type: typePing})
		}
	}
}

// send writes one message. Write failures only log; the read loop
// notices a dead connection and tears it down.
func (c *clientConn) send(ctx context.Context, msg serverMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal outbound message", "type", msg.Type, "err", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "type", msg.Type, "err", err)
	}
}

func (c *clientConn) sendError(ctx context.Context, message string) {
	c.send(ctx, serverMsg{Type: typeError, Message: message})
}

func (c *clientConn) close() {
	c.subMu.Lock()
	for id, unsub := range c.subs {
		unsub()
		delete(c.subs, id)
	}
	c.subMu.Unlock()
	c.ws.Close(websocket.StatusNormalClosure, "bye")
}

// connSubscriber adapts clientConn to [fanout.Subscriber].
type connSubscriber clientConn

func (s *connSubscriber) OnTranscript(ev fanout.TranscriptUpdate) error {
	(*clientConn)(s).send(context.Background(), serverMsg{
		Type:      typeLiveUpdate,
		SessionID: ev.SessionID,
		NewChunk: &newChunk{
			ChunkIndex: ev.ChunkIndex,
			Text:       ev.Text,
			Timestamp:  ev.Timestamp,
		},
	})
	return nil
}

func (s *connSubscriber) OnStatus(ev fanout.StatusUpdate) error {
	(*clientConn)(s).send(context.Background(), serverMsg{
		Type:      typeStatusUpdate,
		SessionID: ev.SessionID,
		Status:    ev.Status,
	})
	return nil
}

// clientErrorText maps the session error taxonomy onto client-facing
// messages.
func clientErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrBufferOverflow):
		return errBufferOverflowMessage
	case errors.Is(err, session.ErrNotFound):
		return "Session not found"
	case errors.Is(err, session.ErrBadState):
		return "Operation not allowed in the session's current state"
	case errors.Is(err, session.ErrIO):
		return "Failed to persist audio fragment"
	default:
		return "Internal error"
	}
}
