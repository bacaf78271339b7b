// Package analysis provides the built-in command handlers. They are syntactic
// helpers over tree-sitter parse trees for TypeScript, TSX and Python sources:
// placeholder printing, block trees, stubs, completion checks, annotation
// weaving, usage extraction and syntax error counting.
//
// Parsing needs cgo. Without it every handler fails with ErrUnavailable, so a
// server built with CGO_ENABLED=0 still starts and answers with error
// responses.
package analysis
