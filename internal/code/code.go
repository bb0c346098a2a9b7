// Package code generates ticket redemption codes.
//
// Codes are random, not sequential: a scanned code is the only credential a
// check-in station sees, so it has to be unguessable and unenumerable.
package code

import (
	"crypto/rand"
	"encoding/base32"
)

// codeBytes is the raw entropy per code: 20 bytes = 160 bits, well above the
// collision-free-in-practice threshold for a UUID-class identifier.
const codeBytes = 20

// Length is the fixed character length of every generated code.
const Length = 32

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate returns a new redemption code. It never fails: an unreadable
// entropy source is fatal to the process, not a per-call error.
func Generate() string {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("code: entropy source unavailable: " + err.Error())
	}
	return encoding.EncodeToString(buf)
}
