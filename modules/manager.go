package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/computecore/internal/singleflight"
	"github.com/IvanBrykalov/computecore/internal/util"
)

// entry is one registered module. Guarded by Manager.mu.
type entry struct {
	key          string
	loader       Loader
	instance     any
	loaded       bool
	accessCount  uint64
	lastAccessed int64 // UnixNano
	loadedAt     int64
}

// Manager owns the module registry. All methods are safe for concurrent use.
type Manager struct {
	opt Options

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// flights guarantees at most one concurrent load per key.
	flights singleflight.Group[string, any]

	ctx    context.Context // handed to loaders, cancelled by Close
	cancel context.CancelFunc
	bg     sync.WaitGroup // background preloads

	_        util.CacheLinePad
	loads    util.Counter
	failures util.Counter
	unloads  util.Counter
}

// New returns an empty Manager.
func New(opt Options) *Manager {
	opt.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opt:     opt,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds an unloaded module.
func (m *Manager) Register(key string, loader Loader) error {
	if loader == nil {
		return fmt.Errorf("modules: nil loader for %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.entries[key]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, key)
	}
	m.entries[key] = &entry{key: key, loader: loader}
	return nil
}

// Get returns the module instance, loading it if needed. Callers arriving
// while a load is in flight join it. ctx bounds only this caller's wait.
func (m *Manager) Get(ctx context.Context, key string) (any, error) {
	return m.get(ctx, key, true)
}

// Preload loads keys concurrently without counting them as accesses.
// Individual failures do not stop the others; they are returned joined.
func (m *Manager) Preload(ctx context.Context, keys ...string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(m.opt.PreloadConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := m.get(ctx, key, false); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// SweepIdle unloads every instance idle for longer than UnloadAfter and
// returns how many were unloaded.
func (m *Manager) SweepIdle() int {
	now := m.now()
	limit := int64(m.opt.UnloadAfter)

	m.mu.Lock()
	var idle []*entry
	for _, e := range m.entries {
		if e.loaded && now-e.lastAccessed > limit {
			idle = append(idle, e)
		}
	}
	unloaded := m.unloadLocked(idle)
	m.mu.Unlock()

	m.cleanup(unloaded)
	if len(unloaded) > 0 {
		m.opt.Logger.Info("idle modules unloaded", "count", len(unloaded))
	}
	return len(unloaded)
}

// Unload drops one loaded instance. It returns false if key is unknown or
// not loaded.
func (m *Manager) Unload(key string) bool {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok || !e.loaded {
		m.mu.Unlock()
		return false
	}
	unloaded := m.unloadLocked([]*entry{e})
	m.mu.Unlock()

	m.cleanup(unloaded)
	return true
}

// ModuleStats describes one registered module.
type ModuleStats struct {
	Key            string    `json:"key"`
	Loaded         bool      `json:"loaded"`
	Loading        bool      `json:"loading"`
	AccessCount    uint64    `json:"access_count"`
	LoadedAt       time.Time `json:"loaded_at,omitzero"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitzero"`
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Registered   int           `json:"registered"`
	Loaded       int           `json:"loaded"`
	Loading      int           `json:"loading"`
	Loads        uint64        `json:"loads"`
	LoadFailures uint64        `json:"load_failures"`
	Unloads      uint64        `json:"unloads"`
	Modules      []ModuleStats `json:"modules"`
}

// Stats returns the registry state. It has no side effects.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{Registered: len(m.entries)}
	for _, e := range m.entries {
		ms := ModuleStats{
			Key:         e.key,
			Loaded:      e.loaded,
			Loading:     m.flights.InFlight(e.key),
			AccessCount: e.accessCount,
		}
		if e.loadedAt != 0 {
			ms.LoadedAt = time.Unix(0, e.loadedAt)
		}
		if e.lastAccessed != 0 {
			ms.LastAccessedAt = time.Unix(0, e.lastAccessed)
		}
		if ms.Loaded {
			s.Loaded++
		}
		if ms.Loading {
			s.Loading++
		}
		s.Modules = append(s.Modules, ms)
	}
	m.mu.Unlock()

	sort.Slice(s.Modules, func(i, j int) bool { return s.Modules[i].Key < s.Modules[j].Key })
	s.Loads = m.loads.Load()
	s.LoadFailures = m.failures.Load()
	s.Unloads = m.unloads.Load()
	return s
}

// Close cancels in-flight loads, waits for background preloads and unloads
// every instance.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.bg.Wait()

	m.mu.Lock()
	var all []*entry
	for _, e := range m.entries {
		if e.loaded {
			all = append(all, e)
		}
	}
	unloaded := m.unloadLocked(all)
	m.mu.Unlock()

	m.cleanup(unloaded)
	return nil
}

// -------------------- internals --------------------

func (m *Manager) get(ctx context.Context, key string, touch bool) (any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, key)
	}
	if e.loaded {
		inst := e.instance
		trigger := touch && m.touchLocked(e)
		m.mu.Unlock()
		if trigger {
			m.schedulePreload(key)
		}
		return inst, nil
	}
	m.mu.Unlock()

	inst, err, shared := m.flights.Do(ctx, key, func() (any, error) { return m.load(key) })
	if err != nil {
		return nil, err
	}
	if shared {
		m.opt.Logger.Debug("joined in-flight module load", "module", key)
	}
	if touch {
		m.mu.Lock()
		trigger := m.touchLocked(e)
		m.mu.Unlock()
		if trigger {
			m.schedulePreload(key)
		}
	}
	return inst, nil
}

// load runs inside the singleflight call for key.
func (m *Manager) load(key string) (inst any, err error) {
	m.mu.Lock()
	e := m.entries[key]
	if e.loaded {
		inst = e.instance
		m.mu.Unlock()
		return inst, nil
	}
	loader := e.loader
	m.mu.Unlock()

	start := time.Now()
	discarded := false
	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("loader panicked: %v", r)
		}
		d := time.Since(start)
		if discarded {
			m.opt.Logger.Info("module load discarded, manager closed", "module", key, "duration", d)
			return
		}
		m.opt.Metrics.Load(key, d, err)
		if err != nil {
			m.failures.Inc()
			m.opt.Logger.Error("module load failed", "module", key, "duration", d, "error", err)
			err = &LoadError{Key: key, Err: err}
			return
		}
		m.loads.Inc()
		m.opt.Logger.Info("module loaded", "module", key, "duration", d)
	}()

	inst, err = loader(m.ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		// Close already swept the resident set; nothing would unload this.
		m.mu.Unlock()
		discarded = true
		m.cleanup([]unloadedInstance{{key: key, inst: inst}})
		return nil, ErrClosed
	}
	now := m.now()
	e.instance = inst
	e.loaded = true
	e.loadedAt = now
	e.lastAccessed = now
	m.opt.Metrics.Resident(m.loadedLocked())
	m.mu.Unlock()
	return inst, nil
}

// touchLocked records an access and reports whether it crossed the preload
// threshold.
func (m *Manager) touchLocked(e *entry) bool {
	e.accessCount++
	e.lastAccessed = m.now()
	return m.opt.PreloadThreshold > 0 &&
		e.accessCount == uint64(m.opt.PreloadThreshold) &&
		len(m.opt.Related[e.key]) > 0
}

// schedulePreload warms the modules related to key in the background.
func (m *Manager) schedulePreload(key string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.bg.Add(1)
	m.mu.Unlock()

	related := m.opt.Related[key]
	m.opt.Logger.Debug("preloading related modules", "module", key, "related", related)
	go func() {
		defer m.bg.Done()
		if err := m.Preload(m.ctx, related...); err != nil {
			m.opt.Logger.Warn("related module preload failed", "module", key, "error", err)
		}
	}()
}

// unloadLocked clears the given entries and returns their instances.
func (m *Manager) unloadLocked(es []*entry) []unloadedInstance {
	out := make([]unloadedInstance, 0, len(es))
	for _, e := range es {
		out = append(out, unloadedInstance{key: e.key, inst: e.instance})
		e.instance = nil
		e.loaded = false
		e.loadedAt = 0
		m.unloads.Inc()
		m.opt.Metrics.Unload(e.key)
	}
	if len(es) > 0 {
		m.opt.Metrics.Resident(m.loadedLocked())
	}
	return out
}

type unloadedInstance struct {
	key  string
	inst any
}

// cleanup runs Cleaner hooks outside the lock.
func (m *Manager) cleanup(us []unloadedInstance) {
	for _, u := range us {
		c, ok := u.inst.(Cleaner)
		if !ok {
			continue
		}
		if err := c.Cleanup(context.Background()); err != nil {
			m.opt.Logger.Warn("module cleanup failed", "module", u.key, "error", err)
		}
	}
}

func (m *Manager) loadedLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.loaded {
			n++
		}
	}
	return n
}

func (m *Manager) now() int64 {
	if m.opt.Clock != nil {
		return m.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
