package script

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/quickflux/internal/dispatcher"
	"github.com/dshills/quickflux/internal/logging"
)

const (
	// GlobalName is the Lua global through which scripts reach the dispatcher.
	GlobalName = "AppDispatcher"

	// ModuleName is the module that require() resolves to the same table.
	ModuleName = "quickflux"

	// registryKey stores the dispatcher userdata in the Lua registry.
	registryKey = "quickflux.dispatcher"
)

// Host embeds one dispatcher into one Lua state. Scripts loaded into the
// host see the dispatcher as the AppDispatcher global (or require
// "quickflux") and register Lua functions as listeners.
type Host struct {
	state      *State
	bridge     *Bridge
	dispatcher *dispatcher.Dispatcher
	logger     *logging.Logger
	api        *lua.LTable

	// Registrations made through this host, removed on Close.
	listeners map[dispatcher.ListenerID]struct{}
	observers map[dispatcher.ObserverID]struct{}
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

type hostConfig struct {
	stateOpts []StateOption
	logger    *logging.Logger
}

// WithStateOptions passes options to the Lua state the host creates.
func WithStateOptions(opts ...StateOption) HostOption {
	return func(c *hostConfig) {
		c.stateOpts = append(c.stateOpts, opts...)
	}
}

// WithHostLogger sets the logger for script-side diagnostics.
func WithHostLogger(l *logging.Logger) HostOption {
	return func(c *hostConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHost creates a Lua state bound to d.
func NewHost(d *dispatcher.Dispatcher, opts ...HostOption) (*Host, error) {
	if d == nil {
		return nil, ErrNoDispatcher
	}

	cfg := hostConfig{logger: logging.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	state, err := NewState(cfg.stateOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating lua state: %w", err)
	}

	h := &Host{
		state:      state,
		bridge:     NewBridge(state.L),
		dispatcher: d,
		logger:     cfg.logger.WithComponent("script"),
		listeners:  make(map[dispatcher.ListenerID]struct{}),
		observers:  make(map[dispatcher.ObserverID]struct{}),
	}
	h.install()
	return h, nil
}

// install publishes the dispatcher as a global, a preloaded module and a
// registry entry for Instance.
func (h *Host) install() {
	L := h.state.L

	h.api = L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"addListener":    h.luaAddListener,
		"removeListener": h.luaRemoveListener,
		"dispatch":       h.luaDispatch,
		"waitFor":        h.luaWaitFor,
		"onDispatched":   h.luaOnDispatched,
		"offDispatched":  h.luaOffDispatched,
		"listenerCount":  h.luaListenerCount,
		"isDispatching":  h.luaIsDispatching,
	})
	L.SetGlobal(GlobalName, h.api)

	L.PreloadModule(ModuleName, func(L *lua.LState) int {
		L.Push(h.api)
		return 1
	})

	ud := L.NewUserData()
	ud.Value = h.dispatcher
	L.G.Registry.RawSetString(registryKey, ud)
}

// Instance returns the dispatcher bound to a Lua state by NewHost, or nil.
func Instance(L *lua.LState) *dispatcher.Dispatcher {
	ud, ok := L.G.Registry.RawGetString(registryKey).(*lua.LUserData)
	if !ok {
		return nil
	}
	d, _ := ud.Value.(*dispatcher.Dispatcher)
	return d
}

// Dispatcher returns the dispatcher the host is bound to.
func (h *Host) Dispatcher() *dispatcher.Dispatcher {
	return h.dispatcher
}

// State returns the host's Lua state.
func (h *Host) State() *State {
	return h.state
}

// Bridge returns the value bridge for the host's Lua state.
func (h *Host) Bridge() *Bridge {
	return h.bridge
}

// LoadFile runs a script file.
func (h *Host) LoadFile(path string) error {
	if err := h.state.DoFile(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadString runs a script chunk.
func (h *Host) LoadString(src string) error {
	if err := h.state.DoString(src); err != nil {
		return fmt.Errorf("loading chunk: %w", err)
	}
	return nil
}

// Dispatch dispatches from Go under the state's execution timeout.
// A non-nil payload is converted once with Bridge.ToLuaValue, so every
// listener and observer of the cycle sees the same Lua value.
func (h *Host) Dispatch(actionType string, payload any) error {
	return h.state.guard(func() error {
		var msg any
		if payload != nil {
			msg = h.bridge.ToLuaValue(payload)
		}
		h.dispatcher.Dispatch(actionType, msg)
		return nil
	})
}

// Close removes every listener and observer registered through the host and
// closes the Lua state.
func (h *Host) Close() error {
	if h.state.IsClosed() {
		return nil
	}
	for id := range h.listeners {
		h.dispatcher.RemoveListener(id)
	}
	for id := range h.observers {
		h.dispatcher.RemoveObserver(id)
	}
	h.listeners = make(map[dispatcher.ListenerID]struct{})
	h.observers = make(map[dispatcher.ObserverID]struct{})
	return h.state.Close()
}

// listener adapts a Lua function to a dispatcher.Listener.
func (h *Host) listener(fn *lua.LFunction) dispatcher.Listener {
	return func(actionType string, payload any) error {
		if h.state.IsClosed() {
			return ErrStateClosed
		}
		rets, err := h.bridge.Call(fn, lua.LString(actionType), h.bridge.ToLuaValue(payload))
		if err != nil {
			return newScriptError(err)
		}
		// Lua convention: return nil, "message" to signal failure.
		if len(rets) >= 2 && !lua.LVAsBool(rets[0]) && rets[1] != lua.LNil {
			return &ScriptError{Message: h.bridge.FormatValue(rets[1])}
		}
		return nil
	}
}

// argBase returns the index of the first real argument, so both
// AppDispatcher.fn(...) and AppDispatcher:fn(...) work.
func (h *Host) argBase(L *lua.LState) int {
	if L.GetTop() >= 1 && L.Get(1) == h.api {
		return 2
	}
	return 1
}

func (h *Host) luaAddListener(L *lua.LState) int {
	fn := L.CheckFunction(h.argBase(L))
	id := h.dispatcher.AddListener(h.listener(fn))
	h.listeners[id] = struct{}{}
	L.Push(lua.LNumber(id))
	return 1
}

func (h *Host) luaRemoveListener(L *lua.LState) int {
	id := dispatcher.ListenerID(L.CheckInt(h.argBase(L)))
	h.dispatcher.RemoveListener(id)
	delete(h.listeners, id)
	return 0
}

func (h *Host) luaDispatch(L *lua.LState) int {
	base := h.argBase(L)
	actionType := L.CheckString(base)

	var payload any
	if msg := L.Get(base + 1); msg != lua.LNil {
		payload = msg
	}

	h.dispatcher.Dispatch(actionType, payload)
	return 0
}

func (h *Host) luaWaitFor(L *lua.LState) int {
	base := h.argBase(L)

	var ids []dispatcher.ListenerID
	for i := base; i <= L.GetTop(); i++ {
		switch v := L.Get(i).(type) {
		case lua.LNumber:
			id, ok := listenerID(v)
			if !ok {
				L.ArgError(i, "ids must be integers")
				return 0
			}
			ids = append(ids, id)
		case *lua.LTable:
			for j := 1; j <= v.Len(); j++ {
				n, ok := v.RawGetInt(j).(lua.LNumber)
				if !ok {
					L.ArgError(i, "ids must be integers")
					return 0
				}
				id, ok := listenerID(n)
				if !ok {
					L.ArgError(i, "ids must be integers")
					return 0
				}
				ids = append(ids, id)
			}
		default:
			L.ArgError(i, "expected listener id or table of ids")
			return 0
		}
	}

	h.dispatcher.WaitFor(ids...)
	return 0
}

// listenerID rejects numbers with a fractional part.
func listenerID(n lua.LNumber) (dispatcher.ListenerID, bool) {
	f := float64(n)
	if f != math.Trunc(f) {
		return 0, false
	}
	return dispatcher.ListenerID(f), true
}

func (h *Host) luaOnDispatched(L *lua.LState) int {
	fn := L.CheckFunction(h.argBase(L))
	id := h.dispatcher.OnDispatched(func(actionType string, payload any) {
		if h.state.IsClosed() {
			return
		}
		if _, err := h.bridge.Call(fn, lua.LString(actionType), h.bridge.ToLuaValue(payload)); err != nil {
			h.logger.WithField("action", actionType).Error("dispatched observer failed: %v", newScriptError(err))
		}
	})
	h.observers[id] = struct{}{}
	L.Push(lua.LNumber(id))
	return 1
}

func (h *Host) luaOffDispatched(L *lua.LState) int {
	id := dispatcher.ObserverID(L.CheckInt(h.argBase(L)))
	h.dispatcher.RemoveObserver(id)
	delete(h.observers, id)
	return 0
}

func (h *Host) luaListenerCount(L *lua.LState) int {
	L.Push(lua.LNumber(h.dispatcher.ListenerCount()))
	return 1
}

func (h *Host) luaIsDispatching(L *lua.LState) int {
	L.Push(lua.LBool(h.dispatcher.IsDispatching()))
	return 1
}
