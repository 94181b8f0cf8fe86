// Package app wires the observed pipeline to its surfaces. It defines the
// App struct, its configuration and the run modes, decoupled from any
// specific entrypoint like a CLI.
//
// Every mode has one goroutine that owns the sequences. In serve mode it is
// a Loop; the terminal modes use the bubbletea event loop.
package app
