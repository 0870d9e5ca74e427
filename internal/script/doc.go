// Package script embeds the dispatcher into a Lua runtime.
//
// A Host owns one sandboxed gopher-lua state and exposes its dispatcher to
// scripts as the AppDispatcher global. The same table is returned by
// require "quickflux".
//
//	d := dispatcher.NewWithDefaults()
//	host, err := script.NewHost(d)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	if err := host.LoadFile("stores.lua"); err != nil {
//	    log.Fatal(err)
//	}
//	host.Dispatch("todo.add", map[string]any{"title": "write docs"})
//
// # Lua API
//
//	local id = AppDispatcher.addListener(function(type, message) ... end)
//	AppDispatcher.removeListener(id)
//	AppDispatcher.dispatch("type", message)
//	AppDispatcher.waitFor({id1, id2})   -- or waitFor(id1, id2)
//	local oid = AppDispatcher.onDispatched(function(type, message) ... end)
//	AppDispatcher.offDispatched(oid)
//	AppDispatcher.listenerCount()
//	AppDispatcher.isDispatching()
//
// Every function also accepts method-call syntax (AppDispatcher:dispatch).
//
// A Lua listener fails when it raises an error or returns nil (or false)
// followed by a message. Failures are reported through the dispatcher's
// error handling and do not stop the cycle.
//
// Tables dispatched from Lua reach Lua listeners unchanged, so every
// listener sees the same table. Go payloads are converted with
// Bridge.ToLuaValue.
//
// # Sandbox
//
// Unless WithUnsafeLibs is given, only the base, package, table, string and
// math libraries are opened, code loading functions are removed and require
// only resolves built-ins and preloaded modules.
//
// # Concurrency
//
// A Host, its State and its dispatcher belong to one goroutine.
package script
