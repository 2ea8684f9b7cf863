// Package registry owns the lifecycle of rooms: code allocation, the live
// room table, timed expiry, and the post-expiry download cooldown.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/session"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/storage"
)

// ErrCodeSpaceExhausted is returned when no free room code can be drawn.
var ErrCodeSpaceExhausted = errors.New("no free room code available")

// maxCodeAttempts bounds the random draw; with a 17.5M code space this only
// trips when the deployment is absurdly oversubscribed.
const maxCodeAttempts = 100

// CodeReserver claims codes in an external store for multi-instance
// deployments. Optional; single-instance deployments rely on the local
// tables alone.
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// Room is one live classroom session.
type Room struct {
	Code      string
	Handler   *session.Handler
	Store     *storage.MemoryStore
	CreatedAt time.Time
	ExpiredAt time.Time

	// Persistent marks rooms created through the API (as opposed to
	// ephemeral test rooms).
	Persistent bool
	// EnableCloudRecording mirrors the creation request; when set and an
	// upload sink is configured, captures are forwarded to it.
	EnableCloudRecording bool

	expiry *time.Timer
}

// cooldownEntry keeps an expired room's recordings downloadable until the
// cooldown elapses.
type cooldownEntry struct {
	store   *storage.MemoryStore
	purgeAt time.Time
	purge   *time.Timer
}

// Options configures a Registry.
type Options struct {
	// TTL is how long a room stays live after creation.
	TTL time.Duration
	// Cooldown is how long recordings remain downloadable after expiry.
	Cooldown time.Duration
	// Reserver, when set, claims codes across instances.
	Reserver CodeReserver
	// UploadSink, when set, receives every capture in addition to the room's
	// in-memory store.
	UploadSink session.Sink
}

// Registry is the process-wide room table. Safe for concurrent use.
type Registry struct {
	opts Options

	mu        sync.RWMutex
	closed    bool
	rooms     map[string]*Room
	cooldowns map[string]*cooldownEntry

	now func() time.Time
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 6 * time.Hour
	}
	return &Registry{
		opts:      opts,
		rooms:     make(map[string]*Room),
		cooldowns: make(map[string]*cooldownEntry),
		now:       time.Now,
	}
}

// CreateRoom allocates a code, builds the room's handler and recording
// store, and schedules expiry.
func (r *Registry) CreateRoom(ctx context.Context, enableCloudRecording bool) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("registry is shut down")
	}

	code, err := r.drawCodeLocked(ctx)
	if err != nil {
		return nil, err
	}

	store := storage.NewMemoryStore()
	var sink session.Sink = store
	if enableCloudRecording && r.opts.UploadSink != nil {
		sink = storage.MultiSink{store, r.opts.UploadSink}
	}

	now := r.now()
	room := &Room{
		Code:                 code,
		Handler:              session.NewHandler(code, sink),
		Store:                store,
		CreatedAt:            now,
		ExpiredAt:            now.Add(r.opts.TTL),
		Persistent:           true,
		EnableCloudRecording: enableCloudRecording,
	}
	room.expiry = time.AfterFunc(r.opts.TTL, func() {
		r.expireRoom(code)
	})
	r.rooms[code] = room
	metrics.ActiveRooms.Set(float64(len(r.rooms)))

	logging.Info(ctx, "room created",
		zap.String("roomCode", code),
		zap.Bool("cloudRecording", enableCloudRecording),
		zap.Time("expiredAt", room.ExpiredAt))
	return room, nil
}

// drawCodeLocked picks a code free in the live table, the cooldown table,
// and (when configured) the shared reserver.
func (r *Registry) drawCodeLocked(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomCode()
		if _, live := r.rooms[code]; live {
			continue
		}
		if _, cooling := r.cooldowns[code]; cooling {
			continue
		}
		if r.opts.Reserver != nil {
			ok, err := r.opts.Reserver.Reserve(ctx, code)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
		}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// Lookup returns the live room for code.
func (r *Registry) Lookup(code string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	return room, ok
}

// TTLRemaining returns how long the live room for code has left. Rooms in
// cooldown report zero.
func (r *Registry) TTLRemaining(code string) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[code]; ok {
		remaining := room.ExpiredAt.Sub(r.now())
		if remaining < 0 {
			remaining = 0
		}
		return remaining, true
	}
	if _, ok := r.cooldowns[code]; ok {
		return 0, true
	}
	return 0, false
}

// CooldownRemaining returns how long the recordings for code stay
// downloadable. For a live room this is the time until the end of its
// eventual cooldown window.
func (r *Registry) CooldownRemaining(code string) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[code]; ok {
		return room.ExpiredAt.Add(r.opts.Cooldown).Sub(r.now()), true
	}
	if entry, ok := r.cooldowns[code]; ok {
		remaining := entry.purgeAt.Sub(r.now())
		if remaining < 0 {
			remaining = 0
		}
		return remaining, true
	}
	return 0, false
}

// Recordings returns the capture files for code, whether the room is live or
// in cooldown.
func (r *Registry) Recordings(code string) ([]storage.File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[code]; ok {
		return room.Store.Files(), true
	}
	if entry, ok := r.cooldowns[code]; ok {
		return entry.store.Files(), true
	}
	return nil, false
}

// expireRoom shuts the room down and moves its store into the cooldown
// table.
func (r *Registry) expireRoom(code string) {
	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, code)
	entry := &cooldownEntry{
		store:   room.Store,
		purgeAt: r.now().Add(r.opts.Cooldown),
	}
	entry.purge = time.AfterFunc(r.opts.Cooldown, func() {
		r.purgeCooldown(code)
	})
	r.cooldowns[code] = entry
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	metrics.RoomsInCooldown.Set(float64(len(r.cooldowns)))
	r.mu.Unlock()

	// Shutdown flushes in-progress captures into the store, so it must run
	// before any download, but outside the registry lock since it fans out
	// to sockets.
	ctx := context.Background()
	room.Handler.Shutdown(ctx, "room expired")
	logging.Info(ctx, "room expired",
		zap.String("roomCode", code),
		zap.Int("recordings", entry.store.Len()))
}

// purgeCooldown drops an expired room's recordings and frees its code.
func (r *Registry) purgeCooldown(code string) {
	r.mu.Lock()
	entry, ok := r.cooldowns[code]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.cooldowns, code)
	metrics.RoomsInCooldown.Set(float64(len(r.cooldowns)))
	r.mu.Unlock()

	ctx := context.Background()
	if r.opts.Reserver != nil {
		if err := r.opts.Reserver.Release(ctx, code); err != nil {
			logging.Warn(ctx, "failed to release room code", zap.String("roomCode", code), zap.Error(err))
		}
	}
	logging.Info(ctx, "room recordings purged",
		zap.String("roomCode", code),
		zap.Int("recordings", entry.store.Len()))
}

// Close shuts down every live room and stops all timers. Used on server
// shutdown.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		room.expiry.Stop()
		rooms = append(rooms, room)
	}
	r.rooms = make(map[string]*Room)
	for _, entry := range r.cooldowns {
		entry.purge.Stop()
	}
	r.cooldowns = make(map[string]*cooldownEntry)
	metrics.ActiveRooms.Set(0)
	metrics.RoomsInCooldown.Set(0)
	r.mu.Unlock()

	for _, room := range rooms {
		room.Handler.Shutdown(ctx, "server shutting down")
	}
}
