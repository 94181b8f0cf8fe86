/*
Package index provides the positional identifiers used throughout the
sequence caches: a flat row offset for one-level sequences and a Path
(section, row) for two-level ones.

Paths have a canonical string form `section.row`, e.g. `2.15`, used by the
HTTP and socket.io surfaces. This package centralises formatting, parsing and
the index-set checks shared by the diff appliers.
*/
package index
