// Package crz64i is the root of the CRZ64I toolchain: a 64-opcode
// energy-aware instruction set, a compiler for its attribute-annotated
// source language, and a simulator that accounts for cycles, joules,
// and per-component temperature while executing the compiled IR.
package crz64i

import (
	"lukechampine.com/blake3"
)

// HashSize is the size of the digests produced by Hash.
const HashSize = 32

// Digest identifies a compilation input.
type Digest = [HashSize]byte

// Hash calculates the hash of x.
// If tag == nil, then the hash is unkeyed.
// If tag != nil, then the hash will be keyed with the tag.
func Hash(tag *Digest, x []byte) (ret Digest) {
	var key []byte
	if tag != nil {
		key = tag[:]
	}
	h := blake3.New(32, key)
	h.Write(x)
	h.Sum(ret[:0])
	return ret
}
