package cmap

// hash function for the bucket array, ported from the FNV-1a variant used
// by libqb's hashtable.c (fnv_32_prime folding).

import (
	"github.com/intuitivelabs/bytescase"
)

const (
	fnvOffsetBasis uint32 = 0x811c9dc5
	fnvPrime       uint32 = 0x01000193
)

// fnv1a computes the plain FNV-1a hash over buf, optionally lower-casing
// each byte first (Config.CaseInsensitiveKeys) the same way the original
// sipsp parser used bytescase.ByteToLower to normalize SIP tokens before
// comparing or hashing them.
func fnv1a(buf []byte, ci bool) uint32 {
	h := fnvOffsetBasis
	for _, b := range buf {
		if ci {
			b = bytescase.ByteToLower(b)
		}
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

// hashFold folds h into the low `order` bits, xor-mixing the upper bits in
// first so a table with few buckets still gets a reasonably even spread.
func hashFold(h uint32, order uint) uint32 {
	return ((h >> order) ^ h) & ((1 << order) - 1)
}

// keyHash returns the bucket index in [0, 2^order) for key, under the
// table's current case-sensitivity setting.
func keyHash(key []byte, order uint, ci bool) uint32 {
	return hashFold(fnv1a(key, ci), order)
}

// keyEqual compares two keys under the table's case-sensitivity setting.
func keyEqual(a, b []byte, ci bool) bool {
	if ci {
		return bytescase.CmpEq(a, b)
	}
	return bytesEqual(a, b)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
