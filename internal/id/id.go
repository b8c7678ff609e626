// Package id generates short, URL-safe identifiers for apiprobe records.
//
// Identifiers are a lowercase type prefix joined to a base58-encoded
// crypto-random payload, e.g. "scr_4kZtW8pQJn". The prefix makes rows
// self-describing in logs and query results; base58 avoids the characters
// that read ambiguously in terminals (0/O, I/l).
package id

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// Well-known prefixes. Execution ids are plain UUIDs (external contract);
// everything apiprobe mints internally goes through New with one of these.
const (
	PrefixScenarioResult = "scr"
	PrefixTestCase       = "tc"
	PrefixTestSuite      = "ts"
)

// payloadBytes yields ~11 base58 characters, comfortably unique for
// per-project row volumes.
const payloadBytes = 8

// New returns a fresh identifier with the given prefix.
func New(prefix string) string {
	buf := make([]byte, payloadBytes)
	// rand.Read never fails on supported platforms; the runtime aborts
	// instead of returning a degraded source.
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return prefix + "_" + base58.Encode(buf)
}
