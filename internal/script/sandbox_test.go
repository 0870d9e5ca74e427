package script

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxRemovesLoaders(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		if err := state.DoString(`assert(` + name + ` == nil)`); err != nil {
			t.Errorf("%s should be removed: %v", name, err)
		}
	}
}

func TestSandboxUnsafeLibrariesAbsent(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	for _, name := range []string{"io", "os", "debug"} {
		if err := state.DoString(`assert(` + name + ` == nil)`); err != nil {
			t.Errorf("%s should not be opened: %v", name, err)
		}
	}
}

func TestSandboxRequire(t *testing.T) {
	tests := []struct {
		name    string
		module  string
		wantErr bool
	}{
		{"string", "string", false},
		{"table", "table", false},
		{"math", "math", false},
		{"io", "io", true},
		{"os", "os", true},
		{"file on disk", "mymodule", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := NewState()
			if err != nil {
				t.Fatalf("NewState() error = %v", err)
			}
			defer state.Close()

			err = state.DoString(`local m = require("` + tt.module + `")`)
			if (err != nil) != tt.wantErr {
				t.Errorf("require(%q) error = %v, wantErr %v", tt.module, err, tt.wantErr)
			}
		})
	}
}

func TestSandboxIsPreloaded(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	if state.Sandbox().IsPreloaded("custom") {
		t.Error("IsPreloaded(custom) = true before PreloadModule")
	}

	state.L.PreloadModule("custom", func(L *lua.LState) int {
		L.Push(lua.LString("ok"))
		return 1
	})

	if !state.Sandbox().IsPreloaded("custom") {
		t.Error("IsPreloaded(custom) = false after PreloadModule")
	}
	if err := state.DoString(`assert(require("custom") == "ok")`); err != nil {
		t.Errorf("require(custom) error = %v", err)
	}
}
