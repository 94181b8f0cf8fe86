// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. Flags
// are layered over OBSEQ_* environment variables; a flag that is set
// explicitly always wins.
package cli
