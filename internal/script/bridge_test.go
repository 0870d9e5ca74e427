package script

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func newTestBridge(t *testing.T) (*State, *Bridge) {
	t.Helper()
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return state, NewBridge(state.L)
}

func TestBridgeToGoValue(t *testing.T) {
	state, b := newTestBridge(t)

	if err := state.DoString(`
		seq = {1, 2, "three"}
		rec = {name = "todo", done = false, n = 1.5}
		empty = {}
	`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	tests := []struct {
		name string
		in   lua.LValue
		want any
	}{
		{"nil", lua.LNil, nil},
		{"bool", lua.LTrue, true},
		{"integer", lua.LNumber(42), int64(42)},
		{"float", lua.LNumber(1.25), 1.25},
		{"string", lua.LString("hi"), "hi"},
		{"sequence", state.GetGlobal("seq"), []any{int64(1), int64(2), "three"}},
		{"record", state.GetGlobal("rec"), map[string]any{"name": "todo", "done": false, "n": 1.5}},
		{"empty table", state.GetGlobal("empty"), map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.ToGoValue(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToGoValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBridgeToGoValueCircular(t *testing.T) {
	state, b := newTestBridge(t)

	if err := state.DoString(`c = {name = "loop"}; c.self = c`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	got, ok := b.ToGoValue(state.GetGlobal("c")).(map[string]any)
	if !ok {
		t.Fatalf("ToGoValue() = %T, want map[string]any", got)
	}
	if got["self"] != nil {
		t.Errorf("self = %v, want nil for circular reference", got["self"])
	}
}

func TestBridgeToLuaValue(t *testing.T) {
	state, b := newTestBridge(t)

	type item struct {
		Title  string `json:"title"`
		Done   bool   `json:"done,omitempty"`
		Secret string `json:"-"`
		hidden int
	}

	b.L.SetGlobal("v", b.ToLuaValue(map[string]any{
		"n":     3,
		"list":  []any{"a", "b"},
		"item":  item{Title: "x", Done: true, Secret: "s", hidden: 1},
		"ptr":   &item{Title: "p"},
		"ints":  []int{1, 2},
		"bytes": []byte("raw"),
	}))

	if err := state.DoString(`
		assert(v.n == 3)
		assert(#v.list == 2 and v.list[2] == "b")
		assert(v.item.title == "x")
		assert(v.item.done == true)
		assert(v.item.Secret == nil and v.item.hidden == nil)
		assert(v.ptr.title == "p")
		assert(v.ints[1] == 1 and v.ints[2] == 2)
		assert(v.bytes == "raw")
	`); err != nil {
		t.Errorf("converted value checks failed: %v", err)
	}
}

func TestBridgeToLuaValuePassesLuaValues(t *testing.T) {
	_, b := newTestBridge(t)

	tbl := b.L.NewTable()
	if got := b.ToLuaValue(tbl); got != tbl {
		t.Error("ToLuaValue() should return Lua tables unchanged")
	}
	if got := b.ToLuaValue(nil); got != lua.LNil {
		t.Errorf("ToLuaValue(nil) = %v, want nil", got)
	}
}

func TestBridgeCall(t *testing.T) {
	state, b := newTestBridge(t)

	if err := state.DoString(`
		function pair(a, b) return b, a end
		function fail() error("nope") end
	`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	fn := state.GetGlobal("pair").(*lua.LFunction)
	rets, err := b.Call(fn, lua.LString("x"), lua.LNumber(1))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(rets) != 2 || rets[0] != lua.LNumber(1) || rets[1] != lua.LString("x") {
		t.Errorf("Call() = %v, want [1 x]", rets)
	}

	top := b.L.GetTop()
	if _, err := b.Call(state.GetGlobal("fail").(*lua.LFunction)); err == nil {
		t.Error("Call() on raising function should return error")
	}
	if b.L.GetTop() != top {
		t.Errorf("stack top = %d after failed Call(), want %d", b.L.GetTop(), top)
	}
}

func TestBridgeFormatValue(t *testing.T) {
	_, b := newTestBridge(t)

	tests := []struct {
		in   lua.LValue
		want string
	}{
		{lua.LNil, "nil"},
		{lua.LString("msg"), "msg"},
		{lua.LNumber(2), "2"},
	}

	for _, tt := range tests {
		if got := b.FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
