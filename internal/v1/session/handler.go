package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
)

// Conn is the transport-facing surface the handler drives. Sends are
// best-effort: a slow or dead socket drops frames rather than blocking the
// room. Implementations must be comparable (pointer types).
type Conn interface {
	SendText(msg string)
	SendJSON(v any)
	SendBinary(data []byte)
	Close() error
}

// Sink receives one completed capture file per speaking turn.
type Sink interface {
	Save(filename string, data []byte)
}

// SortMode selects how the waiting queue is ordered.
type SortMode string

const (
	SortModeFifo     SortMode = "fifo"
	SortModePriority SortMode = "priority"
)

// Priority levels accepted from JSON clients. Values outside the range are
// clamped.
const (
	PriorityNormal = 0
	PriorityUrgent = 3
)

// keySuffixLen is the length of the random lowercase suffix appended to
// usernames to form client keys, e.g. "alice-xkcdq".
const keySuffixLen = 5

// clientState is the per-speaker bookkeeping attached to a registered
// connection.
type clientState struct {
	key      string
	username string
	priority int
	joinTime time.Time

	// manualOrder is set once an instructor hand-places this client and
	// survives sort-mode toggles.
	manualOrder *int
}

// Handler owns all state for one room: the send queue, the listener, the
// instructor connections, per-speaker capture buffers, and the CTS grant.
// A single mutex serializes every frame, disconnect, and shutdown, so the
// per-room invariants hold without finer-grained locking.
type Handler struct {
	roomCode string
	sink     Sink

	mu       sync.Mutex
	closed   bool
	queue    *SendQueue
	clients  map[Conn]*clientState
	byKey    map[string]Conn
	captures map[string]*CaptureBuffer

	// listener is the single audio recipient; instructors is the superset of
	// connections that receive queue-update broadcasts.
	listener    Conn
	instructors map[Conn]struct{}

	// jsonConns tracks which connections have spoken JSON; control frames to
	// them use the JSON variants instead of the legacy text forms.
	jsonConns map[Conn]struct{}

	currentCtsKey string
	lastSenderKey string

	preferredPlaybackMime string
	sortMode              SortMode

	now       func() time.Time
	keySuffix func() string
}

// NewHandler creates the message handler for one room. sink may be nil when
// captures are discarded.
func NewHandler(roomCode string, sink Sink) *Handler {
	return &Handler{
		roomCode:    roomCode,
		sink:        sink,
		queue:       NewSendQueue(),
		clients:     make(map[Conn]*clientState),
		byKey:       make(map[string]Conn),
		captures:    make(map[string]*CaptureBuffer),
		instructors: make(map[Conn]struct{}),
		jsonConns:   make(map[Conn]struct{}),
		sortMode:    SortModeFifo,
		now:         time.Now,
		keySuffix:   randomKeySuffix,
	}
}

func randomKeySuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, keySuffixLen)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

// DisplayName strips the random key suffix from a client key.
func DisplayName(key string) string {
	if len(key) > keySuffixLen+1 {
		return key[:len(key)-keySuffixLen-1]
	}
	return key
}

// HandleFrame processes one WebSocket frame from c. messageType is the
// gorilla frame type; binary frames are always audio.
func (h *Handler) HandleFrame(ctx context.Context, c Conn, messageType int, data []byte) {
	start := time.Now()

	kind := kindAudio
	if messageType != websocket.BinaryMessage {
		kind = classifyText(string(data))
	}
	metrics.WebsocketFrames.WithLabelValues(kind.String()).Inc()
	defer func() {
		metrics.FrameProcessingDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	switch kind {
	case kindRTS:
		h.handleRTSLocked(ctx, c, strings.TrimPrefix(string(data), framePrefixRTS))
	case kindStop:
		h.handleStopLocked(ctx, c)
	case kindListen:
		h.handleListenLocked(ctx, c)
	case kindSkip:
		h.handleSkipLocked(ctx, c)
	case kindQueueStatus:
		h.handleQueueStatusLocked(c)
	case kindFormat:
		h.preferredPlaybackMime = strings.TrimPrefix(string(data), framePrefixFormat)
	case kindJSON:
		h.handleJSONLocked(ctx, c, data)
	default:
		h.handleAudioLocked(c, messageType, data)
	}
}

// HandleDisconnect cleans up after a closed connection. Safe to call for
// connections the handler never saw.
func (h *Handler) HandleDisconnect(ctx context.Context, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	delete(h.instructors, c)

	if c == h.listener {
		h.detachListenerLocked(ctx)
		delete(h.jsonConns, c)
		h.broadcastQueueUpdateLocked()
		return
	}

	st := h.clients[c]
	if st == nil {
		delete(h.jsonConns, c)
		return
	}

	wasActive := st.key == h.currentCtsKey || st.key == h.lastSenderKey || h.queue.HasPriority(c)
	next, _ := h.queue.Remove(c)
	h.flushCaptureLocked(ctx, st.key)
	delete(h.clients, c)
	delete(h.byKey, st.key)
	delete(h.captures, st.key)
	delete(h.jsonConns, c)

	if wasActive {
		h.currentCtsKey, h.lastSenderKey = "", ""
		h.sendControlLocked(h.listener, frameClear, controlMessage{Type: "clear"})
		if next != nil && h.listener != nil {
			h.grantCTSLocked(ctx, next)
		}
	}

	logging.Debug(ctx, "speaker disconnected",
		zap.String("roomCode", h.roomCode),
		zap.String("clientKey", st.key),
		zap.Bool("wasActive", wasActive))
	h.broadcastQueueUpdateLocked()
}

// Shutdown notifies every connection, flushes in-progress captures, and
// closes all sockets. The handler accepts no frames afterwards.
func (h *Handler) Shutdown(ctx context.Context, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	conns := make(map[Conn]struct{}, len(h.clients)+len(h.instructors)+1)
	for c := range h.clients {
		conns[c] = struct{}{}
	}
	for c := range h.instructors {
		conns[c] = struct{}{}
	}
	if h.listener != nil {
		conns[h.listener] = struct{}{}
	}

	stop := controlMessage{Type: "stop"}
	for c := range conns {
		h.sendControlLocked(c, frameStop, stop)
		_ = c.Close()
	}

	for key := range h.captures {
		h.flushCaptureLocked(ctx, key)
	}

	logging.Info(ctx, "room handler shut down",
		zap.String("roomCode", h.roomCode),
		zap.String("reason", reason),
		zap.Int("connections", len(conns)))

	h.listener = nil
	h.currentCtsKey, h.lastSenderKey = "", ""
	h.clients = make(map[Conn]*clientState)
	h.byKey = make(map[string]Conn)
	h.captures = make(map[string]*CaptureBuffer)
	h.instructors = make(map[Conn]struct{})
	h.jsonConns = make(map[Conn]struct{})
	h.queue = NewSendQueue()
}

// --- speaker admission -------------------------------------------------------

func (h *Handler) handleRTSLocked(ctx context.Context, c Conn, username string) {
	h.registerSpeakerLocked(ctx, c, username, nil)
}

// registerSpeakerLocked admits a speaker into the queue, minting a key and
// capture buffer on first contact. Re-registration is idempotent and keeps
// the original key, join time, and priority unless a new priority is given.
func (h *Handler) registerSpeakerLocked(ctx context.Context, c Conn, username string, priority *int) {
	st := h.clients[c]
	if st == nil {
		if username == "" {
			return
		}
		key := h.mintKeyLocked(username)
		st = &clientState{
			key:      key,
			username: username,
			joinTime: h.now(),
		}
		if priority != nil {
			st.priority = clampPriority(*priority)
		}
		h.clients[c] = st
		h.byKey[key] = c
		h.captures[key] = &CaptureBuffer{}
		logging.Debug(ctx, "speaker registered",
			zap.String("roomCode", h.roomCode),
			zap.String("clientKey", key),
			zap.Int("priority", st.priority))
	} else if priority != nil {
		st.priority = clampPriority(*priority)
	}

	h.queue.Register(c)
	if h.sortMode == SortModePriority {
		h.applySortLocked()
	}
	h.maybeGrantHeadLocked(ctx)
	h.broadcastQueueUpdateLocked()
}

func (h *Handler) mintKeyLocked(username string) string {
	for {
		key := username + "-" + h.keySuffix()
		if _, taken := h.byKey[key]; !taken {
			return key
		}
	}
}

func clampPriority(p int) int {
	if p < PriorityNormal {
		return PriorityNormal
	}
	if p > PriorityUrgent {
		return PriorityUrgent
	}
	return p
}

// maybeGrantHeadLocked grants CTS to the queue head whenever a listener is
// attached and nobody currently holds the grant. This is the single place
// speech starts, so a higher-priority arrival that sorts to the head is
// granted even though it registered last.
func (h *Handler) maybeGrantHeadLocked(ctx context.Context) {
	if h.currentCtsKey != "" || h.listener == nil {
		return
	}
	if head, ok := h.queue.Peek(); ok {
		h.grantCTSLocked(ctx, head)
	}
}

// grantCTSLocked makes c the current speaker: moves it to the queue head,
// starts its capture buffer, announces it to the listener, and clears c to
// send. Callers broadcast the queue update.
func (h *Handler) grantCTSLocked(ctx context.Context, c Conn) {
	st := h.clients[c]
	if st == nil {
		return
	}
	if !h.queue.HasPriority(c) {
		h.queue.Prepend(c)
	}

	buf := h.captures[st.key]
	if buf == nil {
		buf = &CaptureBuffer{}
		h.captures[st.key] = buf
	}
	buf.Begin(h.now())

	h.currentCtsKey = st.key
	h.lastSenderKey = st.key

	if h.listener != nil {
		h.sendControlLocked(h.listener, frameClear, controlMessage{Type: "clear"})
		h.sendFromLocked(h.listener, st.username)
	}
	if h.preferredPlaybackMime != "" && !h.speaksJSONLocked(c) {
		c.SendText(framePrefixRecMime + h.preferredPlaybackMime)
	}
	h.sendControlLocked(c, frameCTS, controlMessage{Type: "cts"})

	logging.Debug(ctx, "cts granted",
		zap.String("roomCode", h.roomCode),
		zap.String("clientKey", st.key))
}

func (h *Handler) handleStopLocked(ctx context.Context, c Conn) {
	if c == h.listener {
		h.detachListenerLocked(ctx)
		h.broadcastQueueUpdateLocked()
		return
	}

	st := h.clients[c]
	if st == nil {
		return
	}

	wasActive := st.key == h.currentCtsKey || st.key == h.lastSenderKey
	next, _ := h.queue.Remove(c)
	if wasActive {
		h.flushCaptureLocked(ctx, st.key)
		h.sendControlLocked(h.listener, frameClear, controlMessage{Type: "clear"})
		h.currentCtsKey, h.lastSenderKey = "", ""
		if next != nil && h.listener != nil {
			h.grantCTSLocked(ctx, next)
		}
	}
	h.broadcastQueueUpdateLocked()
}

// detachListenerLocked removes the listener, restoring any interrupted
// speaker to the head of the queue so they are first when listening resumes.
func (h *Handler) detachListenerLocked(ctx context.Context) {
	h.listener = nil
	if h.currentCtsKey != "" {
		if sp := h.byKey[h.currentCtsKey]; sp != nil {
			h.queue.Prepend(sp)
			h.sendControlLocked(sp, frameStop, controlMessage{Type: "stop"})
		}
		logging.Debug(ctx, "listener detached mid-speech",
			zap.String("roomCode", h.roomCode),
			zap.String("interruptedKey", h.currentCtsKey))
	}
	h.currentCtsKey, h.lastSenderKey = "", ""
}

func (h *Handler) handleListenLocked(ctx context.Context, c Conn) {
	if h.listener != nil && h.listener != c {
		old := h.listener
		h.listener = nil
		_ = old.Close()
	}
	h.listener = c
	h.instructors[c] = struct{}{}

	switch {
	case h.currentCtsKey != "":
		// Speech continues across a listener swap; re-announce the speaker.
		if st := h.stateForKeyLocked(h.currentCtsKey); st != nil {
			h.sendFromLocked(c, st.username)
		}
	default:
		h.maybeGrantHeadLocked(ctx)
		if h.currentCtsKey == "" && h.lastSenderKey != "" {
			if st := h.stateForKeyLocked(h.lastSenderKey); st != nil {
				h.sendFromLocked(c, st.username)
			}
		}
	}

	c.SendJSON(h.queueSnapshotLocked("queue-status"))
	h.broadcastQueueUpdateLocked()
}

// handleSkipLocked forcibly ends the current (or most recent) speaker's turn.
// Listener only.
func (h *Handler) handleSkipLocked(ctx context.Context, c Conn) {
	if c != h.listener {
		return
	}

	h.sendControlLocked(h.listener, frameClear, controlMessage{Type: "clear"})

	key := h.currentCtsKey
	if key == "" {
		key = h.lastSenderKey
	}
	if key != "" {
		h.flushCaptureLocked(ctx, key)
		if sp := h.byKey[key]; sp != nil {
			h.sendControlLocked(sp, frameStop, controlMessage{Type: "stop"})
			h.queue.Remove(sp)
		}
	} else if head, ok := h.queue.Peek(); ok {
		h.sendControlLocked(head, frameStop, controlMessage{Type: "stop"})
		h.queue.Remove(head)
	}
	h.currentCtsKey, h.lastSenderKey = "", ""

	h.maybeGrantHeadLocked(ctx)
	h.broadcastQueueUpdateLocked()
}

func (h *Handler) handleQueueStatusLocked(c Conn) {
	// Requesting queue state subscribes the connection to future updates.
	h.instructors[c] = struct{}{}
	c.SendJSON(h.queueSnapshotLocked("queue-status"))
}

// --- audio -------------------------------------------------------------------

// handleAudioLocked relays an audio payload from an allowed sender to the
// listener and appends it to the sender's capture buffer. lastSenderKey
// tolerates frames that were already in flight when a turn ended.
func (h *Handler) handleAudioLocked(c Conn, messageType int, payload []byte) {
	st := h.clients[c]
	if st == nil {
		c.SendText(frameNeedRTS)
		return
	}

	allowed := st.key == h.currentCtsKey ||
		st.key == h.lastSenderKey ||
		h.queue.HasPriority(c)
	if !allowed {
		return
	}

	if st.key != h.lastSenderKey {
		if h.listener != nil {
			h.sendFromLocked(h.listener, st.username)
		}
		h.lastSenderKey = st.key
	}

	if buf := h.captures[st.key]; buf != nil {
		buf.Append(payload)
	}

	if h.listener != nil {
		if messageType == websocket.BinaryMessage {
			h.listener.SendBinary(payload)
		} else {
			h.listener.SendText(string(payload))
		}
		metrics.AudioBytesRelayed.Add(float64(len(payload)))
	}
}

// --- JSON messages -----------------------------------------------------------

func (h *Handler) handleJSONLocked(ctx context.Context, c Conn, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warn(ctx, "malformed json frame dropped",
			zap.String("roomCode", h.roomCode), zap.Error(err))
		return
	}

	// The connection speaks JSON; use JSON control frames from here on.
	h.jsonConns[c] = struct{}{}

	switch msg.Type {
	case msgTypeReady:
		h.registerSpeakerLocked(ctx, c, msg.Username, msg.Priority)
	case msgTypeUpdatePriority:
		h.handleUpdatePriorityLocked(ctx, c, msg.Priority)
	case msgTypeStop:
		h.handleStopLocked(ctx, c)
	case msgTypeOffer:
		h.relayOfferLocked(c, data)
	case msgTypeAnswer:
		h.relayToCurrentSpeakerLocked(data)
	case msgTypeICECandidate:
		h.relayICECandidateLocked(c, data)
	case msgTypeKickUser:
		h.handleKickUserLocked(ctx, c, msg.Username)
	case msgTypeReorderUser:
		h.handleReorderUserLocked(c, msg.Username, Direction(msg.Direction))
	case msgTypeMoveUserToPosition:
		h.handleMoveUserLocked(c, msg.Username, msg.Position)
	case msgTypeSetQueueSortMode:
		h.handleSetSortModeLocked(ctx, c, SortMode(msg.Mode))
	default:
		// Unknown types are dropped so protocol additions stay compatible.
	}
}

func (h *Handler) handleUpdatePriorityLocked(ctx context.Context, c Conn, priority *int) {
	st := h.clients[c]
	if st == nil || priority == nil {
		return
	}
	st.priority = clampPriority(*priority)
	if h.sortMode == SortModePriority {
		h.applySortLocked()
	}
	h.maybeGrantHeadLocked(ctx)
	h.broadcastQueueUpdateLocked()
}

// relayOfferLocked forwards a WebRTC offer to the listener, stamped with the
// sender's display name so the listener knows whose stream it is answering.
func (h *Handler) relayOfferLocked(c Conn, data []byte) {
	if h.listener == nil {
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	if st := h.clients[c]; st != nil {
		raw["from"] = st.username
	}
	h.listener.SendJSON(raw)
}

func (h *Handler) relayToCurrentSpeakerLocked(data []byte) {
	if h.currentCtsKey == "" {
		return
	}
	if sp := h.byKey[h.currentCtsKey]; sp != nil {
		// Forward the raw bytes so the SDP passes through untouched.
		sp.SendText(string(data))
	}
}

func (h *Handler) relayICECandidateLocked(c Conn, data []byte) {
	if c == h.listener {
		h.relayToCurrentSpeakerLocked(data)
		return
	}
	if h.listener != nil {
		h.listener.SendText(string(data))
	}
}

// --- instructor queue management ---------------------------------------------

func (h *Handler) handleKickUserLocked(ctx context.Context, c Conn, username string) {
	if !h.isInstructorLocked(c) {
		return
	}
	target, st := h.connByUsernameLocked(username)
	if target == nil {
		c.SendJSON(errorMessage{Type: "kick-error", Message: fmt.Sprintf("user not found: %s", username)})
		return
	}

	if st.key == h.currentCtsKey || st.key == h.lastSenderKey {
		h.flushCaptureLocked(ctx, st.key)
		h.sendControlLocked(h.listener, frameClear, controlMessage{Type: "clear"})
		h.currentCtsKey, h.lastSenderKey = "", ""
	}
	h.queue.Remove(target)

	if h.speaksJSONLocked(target) {
		target.SendJSON(controlMessage{Type: "kicked"})
	}
	h.sendControlLocked(target, frameStop, controlMessage{Type: "stop"})

	logging.Info(ctx, "speaker kicked",
		zap.String("roomCode", h.roomCode),
		zap.String("clientKey", st.key))

	h.maybeGrantHeadLocked(ctx)
	h.broadcastQueueUpdateLocked()
}

func (h *Handler) handleReorderUserLocked(c Conn, username string, dir Direction) {
	if !h.isInstructorLocked(c) {
		return
	}
	target, st := h.connByUsernameLocked(username)
	switch {
	case target == nil:
		c.SendJSON(errorMessage{Type: "reorder-error", Message: fmt.Sprintf("user not found: %s", username)})
	case st.key == h.currentCtsKey:
		c.SendJSON(errorMessage{Type: "reorder-error", Message: "cannot reorder the current speaker"})
	case dir != DirectionUp && dir != DirectionDown:
		c.SendJSON(errorMessage{Type: "reorder-error", Message: fmt.Sprintf("invalid direction: %s", dir)})
	case dir == DirectionUp && h.speakerPinnedAtHeadLocked() && h.queue.indexOf(target) == 1:
		// The current speaker occupies the real head slot; the waiting member
		// below it is already at the top of the queue instructors see.
		c.SendJSON(errorMessage{Type: "reorder-error", Message: fmt.Sprintf("cannot move %s %s", username, dir)})
	case !h.queue.Swap(target, dir):
		c.SendJSON(errorMessage{Type: "reorder-error", Message: fmt.Sprintf("cannot move %s %s", username, dir)})
	default:
		h.pinManualOrderLocked()
		h.broadcastQueueUpdateLocked()
	}
}

// handleMoveUserLocked moves a waiting speaker to a position in the waiting
// queue. Positions are indices into the queue as instructors see it, which
// excludes the current speaker, so the internal index shifts by one while
// someone holds CTS.
func (h *Handler) handleMoveUserLocked(c Conn, username string, position *int) {
	if !h.isInstructorLocked(c) {
		return
	}
	target, st := h.connByUsernameLocked(username)
	switch {
	case target == nil:
		c.SendJSON(errorMessage{Type: "move-error", Message: fmt.Sprintf("user not found: %s", username)})
		return
	case st.key == h.currentCtsKey:
		c.SendJSON(errorMessage{Type: "move-error", Message: "cannot move the current speaker"})
		return
	case position == nil:
		c.SendJSON(errorMessage{Type: "move-error", Message: "position is required"})
		return
	}

	index := *position
	if h.speakerPinnedAtHeadLocked() {
		index++
	}
	if !h.queue.MoveToPosition(target, index) {
		c.SendJSON(errorMessage{Type: "move-error", Message: fmt.Sprintf("cannot move %s to position %d", username, *position)})
		return
	}
	h.pinManualOrderLocked()
	h.broadcastQueueUpdateLocked()
}

func (h *Handler) handleSetSortModeLocked(ctx context.Context, c Conn, mode SortMode) {
	if !h.isInstructorLocked(c) {
		return
	}
	if mode != SortModeFifo && mode != SortModePriority {
		return
	}

	// Freeze the current arrangement as manual order before re-sorting so
	// hand-placed members keep their slots across mode toggles.
	for i, member := range h.queue.All() {
		if st := h.clients[member]; st != nil && st.manualOrder == nil {
			pos := i
			st.manualOrder = &pos
		}
	}

	h.sortMode = mode
	h.applySortLocked()
	h.maybeGrantHeadLocked(ctx)
	h.broadcastQueueUpdateLocked()
}

// pinManualOrderLocked records the post-mutation arrangement as every
// member's manual order so later sorts preserve it.
func (h *Handler) pinManualOrderLocked() {
	for i, member := range h.queue.All() {
		if st := h.clients[member]; st != nil {
			pos := i
			st.manualOrder = &pos
		}
	}
}

func (h *Handler) applySortLocked() {
	var exclude Conn
	if h.currentCtsKey != "" {
		exclude = h.byKey[h.currentCtsKey]
	}
	priority := func(c Conn) int { return h.clients[c].priority }
	joinTime := func(c Conn) time.Time { return h.clients[c].joinTime }
	manual := func(c Conn) (int, bool) {
		if m := h.clients[c].manualOrder; m != nil {
			return *m, true
		}
		return 0, false
	}
	if h.sortMode == SortModePriority {
		h.queue.SortByPriority(priority, joinTime, manual, exclude)
	} else {
		h.queue.SortByFifo(joinTime, manual, exclude)
	}
}

// --- shared helpers ----------------------------------------------------------

func (h *Handler) stateForKeyLocked(key string) *clientState {
	if c := h.byKey[key]; c != nil {
		return h.clients[c]
	}
	return nil
}

func (h *Handler) connByUsernameLocked(username string) (Conn, *clientState) {
	for c, st := range h.clients {
		if st.username == username {
			return c, st
		}
	}
	return nil, nil
}

func (h *Handler) isInstructorLocked(c Conn) bool {
	_, ok := h.instructors[c]
	return ok
}

func (h *Handler) speaksJSONLocked(c Conn) bool {
	_, ok := h.jsonConns[c]
	return ok
}

func (h *Handler) speakerPinnedAtHeadLocked() bool {
	if h.currentCtsKey == "" {
		return false
	}
	head, ok := h.queue.Peek()
	if !ok {
		return false
	}
	st := h.clients[head]
	return st != nil && st.key == h.currentCtsKey
}

// sendControlLocked delivers a control frame in the encoding the connection
// speaks: legacy text for text-only clients, JSON otherwise. Nil-safe.
func (h *Handler) sendControlLocked(c Conn, text string, jsonMsg any) {
	if c == nil {
		return
	}
	if h.speaksJSONLocked(c) {
		c.SendJSON(jsonMsg)
		return
	}
	c.SendText(text)
}

func (h *Handler) sendFromLocked(c Conn, username string) {
	h.sendControlLocked(c, framePrefixFrom+username, fromMessage{Type: "from", Name: username})
}

// flushCaptureLocked hands the finished capture to the sink, skipping empty
// turns.
func (h *Handler) flushCaptureLocked(ctx context.Context, key string) {
	buf := h.captures[key]
	if buf == nil {
		return
	}
	filename, data, ok := buf.Flush(key)
	if !ok {
		return
	}
	if h.sink != nil {
		h.sink.Save(filename, data)
	}
	metrics.CaptureFlushes.Inc()
	logging.Debug(ctx, "capture flushed",
		zap.String("roomCode", h.roomCode),
		zap.String("filename", filename),
		zap.Int("bytes", len(data)))
}

// queueSnapshotLocked builds the queue state payload. The waiting queue
// excludes the current speaker, who is reported separately.
func (h *Handler) queueSnapshotLocked(msgType string) queueSnapshot {
	snap := queueSnapshot{
		Type:     msgType,
		Queue:    []queueEntry{},
		SortMode: string(h.sortMode),
	}
	pos := 0
	for _, member := range h.queue.All() {
		st := h.clients[member]
		if st == nil {
			continue
		}
		if h.currentCtsKey != "" && st.key == h.currentCtsKey {
			name := st.username
			pri := st.priority
			snap.CurrentSpeaker = &name
			snap.CurrentSpeakerPriority = &pri
			continue
		}
		snap.Queue = append(snap.Queue, queueEntry{
			Username: st.username,
			Priority: st.priority,
			Position: pos,
		})
		pos++
	}
	snap.QueueSize = len(snap.Queue)
	return snap
}

func (h *Handler) broadcastQueueUpdateLocked() {
	if len(h.instructors) == 0 {
		return
	}
	snap := h.queueSnapshotLocked("queue-update")
	for c := range h.instructors {
		c.SendJSON(snap)
	}
}
