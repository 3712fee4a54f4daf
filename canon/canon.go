// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package canon implements the single canonical-encoding helper both the
// mediator's consent signatures and the consensus manager's vote signatures
// build on, resolving the Open Question SPEC_FULL.md section 9 #2.
package canon

import (
	"encoding/binary"
)

// Message length-prefixes and concatenates each part, avoiding the
// delimiter-collision ambiguity of a naive "||" join.
func Message(parts ...[]byte) []byte {
	var size int
	for _, p := range parts {
		size += 4 + len(p)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}
