package worker

import (
	"container/list"
	"context"
	"os"
	"sync"
	"time"

	"github.com/RomiChan/syncx"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/importer"
	"github.com/chatlab/chatlab-core/internal/merge"
	"github.com/chatlab/chatlab-core/internal/query"
	"github.com/chatlab/chatlab-core/internal/sessioncache"
	"github.com/chatlab/chatlab-core/internal/staging"
	"github.com/chatlab/chatlab-core/internal/store"
)

// Default per-request timeouts (§4.8).
const (
	ShortTimeout = 30 * time.Second
	LongTimeout  = 10 * time.Minute
)

// longRunningOps posts progress and gets LongTimeout instead of
// ShortTimeout (§4.8: "import", "incremental import", "file info").
var longRunningOps = map[string]bool{
	OpImportStream:             true,
	OpImportAnalyzeIncremental: true,
	OpImportIncremental:        true,
	OpImportParseFileInfo:      true,
	OpMergeMergeFiles:          true,
}

// Deps are the process-lifetime values the shell owns and passes in at
// construction, rather than the host reading them from ambient globals.
type Deps struct {
	Registry     *format.Registry
	Dispatch     importer.Dispatch
	StoreDir     string
	TempDir      string
	MergedDir    string
	SessionCache *sessioncache.Cache
	Log          *log.Entry

	// MaxOpenHandles bounds the read-handle cache (§3 "Ownership": "the
	// process keeps a bounded mapping of session id -> read handle for
	// reuse").
	MaxOpenHandles int
	// ProgressEventsPerSecond throttles how often OnProgress fires per
	// request, so a multi-GB import doesn't flood the caller with one
	// event per 5000-message batch (§6.6, golang.org/x/time).
	ProgressEventsPerSecond float64
}

// Host is the single dedicated execution context that owns every open
// store and serializes writes per session (§4.8, §5).
type Host struct {
	deps Deps

	pipeline     *importer.Pipeline
	softMigrator *store.SoftMigrator

	handlesMu sync.Mutex
	handles   map[string]*list.Element // sessionID -> LRU node
	lru       *list.List               // front = most recently used

	// writeLocks holds the single-writer-per-session mutex (§5); a typed
	// concurrent map avoids a second coarse lock just to guard map access.
	writeLocks syncx.Map[string, *sync.Mutex]

	// mergeOps holds the staged sources for an in-progress merge.* workflow,
	// keyed by the caller-chosen merge id.
	mergeOps syncx.Map[string, *mergeSession]
}

type openHandle struct {
	sessionID string
	store     *store.Store
	engine    *query.Engine
}

// mergeSession tracks the staging stores opened for one merge.* workflow,
// keyed by the caller-chosen merge id so checkConflicts/mergeFiles/
// clearCache share the same staged data without re-parsing every call.
type mergeSession struct {
	sources []merge.Source
	staged  []*staging.Store
}

// New constructs a Host. Registry/Dispatch/directories are supplied by the
// caller; New sweeps stale staging stores left over from a prior process.
func New(deps Deps) *Host {
	if deps.MaxOpenHandles <= 0 {
		deps.MaxOpenHandles = 16
	}
	if deps.ProgressEventsPerSecond <= 0 {
		deps.ProgressEventsPerSecond = 20
	}
	if deps.Log == nil {
		deps.Log = log.WithField("component", "worker")
	}
	os.MkdirAll(deps.StoreDir, 0o755)
	os.MkdirAll(deps.TempDir, 0o755)
	os.MkdirAll(deps.MergedDir, 0o755)
	staging.Sweep(deps.TempDir) // §5: "staging store directory is swept on process start"

	h := &Host{
		deps:         deps,
		pipeline:     importer.New(deps.Registry, deps.Dispatch, deps.StoreDir),
		softMigrator: store.NewSoftMigrator(),
		handles:      make(map[string]*list.Element),
		lru:          list.New(),
	}
	return h
}

// NewRequestID allocates a request id for a caller that doesn't supply its
// own (§9, §6.6: google/uuid for worker request ids).
func NewRequestID() string { return uuid.NewString() }

// writeLock returns the single mutex serializing writes to sessionID
// (§5: "writes use a single in-flight transaction per session at a time").
func (h *Host) writeLock(sessionID string) *sync.Mutex {
	mu, _ := h.writeLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu
}

// readEngine returns a cached query.Engine for sessionID, opening and
// caching a new read handle on a cache miss, evicting the least-recently
// used handle once the cache is at capacity.
func (h *Host) readEngine(ctx context.Context, sessionID string) (*openHandle, error) {
	h.handlesMu.Lock()
	if el, ok := h.handles[sessionID]; ok {
		h.lru.MoveToFront(el)
		oh := el.Value.(*openHandle)
		h.handlesMu.Unlock()
		return oh, nil
	}
	h.handlesMu.Unlock()

	dbPath := h.sessionPath(sessionID)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, coreerr.New(coreerr.CodeNotFound, "unknown session "+sessionID)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := h.softMigrator.EnsureColumns(ctx, sessionID, st); err != nil {
		st.Close()
		return nil, err
	}
	oh := &openHandle{sessionID: sessionID, store: st, engine: query.New(st)}

	h.handlesMu.Lock()
	defer h.handlesMu.Unlock()
	if el, ok := h.handles[sessionID]; ok {
		// Lost a race with another reader opening the same session; keep
		// the winner, close ours.
		h.lru.MoveToFront(el)
		st.Close()
		return el.Value.(*openHandle), nil
	}
	el := h.lru.PushFront(oh)
	h.handles[sessionID] = el
	h.evictLocked()
	return oh, nil
}

func (h *Host) evictLocked() {
	for h.lru.Len() > h.deps.MaxOpenHandles {
		back := h.lru.Back()
		if back == nil {
			return
		}
		oh := back.Value.(*openHandle)
		oh.store.Close()
		delete(h.handles, oh.sessionID)
		h.lru.Remove(back)
	}
}

// evict drops sessionID's cached handle, if any, closing the underlying
// store. Delete operations call this before removing files (§9: "the
// worker's open-handle cache must not outlive a session delete").
func (h *Host) evict(sessionID string) {
	h.handlesMu.Lock()
	defer h.handlesMu.Unlock()
	if el, ok := h.handles[sessionID]; ok {
		oh := el.Value.(*openHandle)
		oh.store.Close()
		h.lru.Remove(el)
		delete(h.handles, sessionID)
	}
}

func (h *Host) sessionPath(sessionID string) string {
	return h.deps.StoreDir + string(os.PathSeparator) + sessionID + ".db"
}

// progressThrottle wraps onProgress in a token-bucket limiter so a batch
// loop emitting one event per 5000 messages never floods the caller beyond
// ProgressEventsPerSecond, while still always letting the final event
// through (§6.6).
func (h *Host) progressThrottle(id string, onProgress ProgressFunc) func(stage string, bytesRead, totalBytes, processed int64, pct int, msg string) {
	if onProgress == nil {
		return func(string, int64, int64, int64, int, string) {}
	}
	limiter := rate.NewLimiter(rate.Limit(h.deps.ProgressEventsPerSecond), 1)
	return func(stage string, bytesRead, totalBytes, processed int64, pct int, msg string) {
		terminal := stage == "done" || stage == "error" || stage == "stop"
		if !terminal && !limiter.Allow() {
			return
		}
		onProgress(Progress{
			ID: id, Stage: stage, BytesRead: bytesRead, TotalBytes: totalBytes,
			MessagesProcessed: processed, Percentage: pct, Message: msg,
		})
	}
}

// timeoutFor returns the per-op default timeout (§4.8).
func timeoutFor(op string) time.Duration {
	if longRunningOps[op] {
		return LongTimeout
	}
	return ShortTimeout
}

