// Package internal holds shared primitives for the recovery core: random
// code generation and secret hashing. Nothing here is importable from
// outside the module.
package internal
