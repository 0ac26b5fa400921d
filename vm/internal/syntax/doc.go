// Package syntax lexes and parses the expression language evaluated by the
// embedded runtime: literals, calls, indexing, arithmetic, assignments and
// short function definitions.
package syntax
