package partitioner

import "encoding/binary"

// Murmur3 is Cassandra's Murmur3Partitioner. It is deliberately NOT the
// reference Murmur3 algorithm: Cassandra's Java/C reimplementation
// sign-extends each *tail* key byte (the < 16 bytes left over after the
// last full 128-bit block) to int64 before mixing rather than
// zero-extending it, and that bug is baked into every token ever
// written by a Murmur3Partitioner keyspace. A conformant Murmur3 call
// (e.g. a generic hashing library) would silently reorder real rows,
// so this is hand-rolled rather than delegated (see DESIGN.md).
type Murmur3 struct{}

const (
	murmurC1 int64 = -0x783c846eeebdac2b // 0x87c37b91114253d5 as int64
	murmurC2 int64 = 0x4cf5ad432745937f
)

func rotl64(v int64, n uint) int64 {
	return (v << n) | (int64(uint64(v) >> (64 - n)))
}

func fmix(k int64) int64 {
	k ^= int64(uint64(k) >> 33)
	k *= -0x395b586ca42e166b // 0xff51afd7ed558ccd as int64
	k ^= int64(uint64(k) >> 33)
	k *= -0x7a143595b33d0a1b // 0xc4ceb9fe1a85ec53 as int64
	k ^= int64(uint64(k) >> 33)
	return k
}

// getblock reads 8 key bytes starting at offset+index*8, zero-extending
// each byte to int64 before combining. Only the tail bytes below
// sign-extend (the preserved Cassandra bug lives there, not here).
func getblock(key []byte, offset, index int) int64 {
	o := offset + index*8
	var v int64
	for i := 0; i < 8; i++ {
		v += (int64(key[o+i]) & 0xff) << (8 * i)
	}
	return v
}

func (Murmur3) AssignToken(key []byte) Token {
	length := len(key)
	nblocks := length / 16

	var h1, h2 int64
	offset := 0

	for i := 0; i < nblocks; i++ {
		k1 := getblock(key, offset, i*2+0)
		k2 := getblock(key, offset, i*2+1)

		k1 *= murmurC1
		k1 = rotl64(k1, 31)
		k1 *= murmurC2
		h1 ^= k1

		h1 = rotl64(h1, 27)
		h1 += h2
		h1 = h1*5 + 0x52dce729

		k2 *= murmurC2
		k2 = rotl64(k2, 33)
		k2 *= murmurC1
		h2 ^= k2

		h2 = rotl64(h2, 31)
		h2 += h1
		h2 = h2*5 + 0x38495ab5
	}

	offset += nblocks * 16

	var k1, k2 int64
	tail := length & 15

	// Cassandra's switch falls through from the highest populated case
	// down to 1, accumulating bytes of k2 before mixing it, then bytes
	// of k1 before mixing it — replicated here with explicit ifs since
	// Go has no implicit switch fallthrough.
	if tail >= 15 {
		k2 ^= int64(int8(key[offset+14])) << 48
	}
	if tail >= 14 {
		k2 ^= int64(int8(key[offset+13])) << 40
	}
	if tail >= 13 {
		k2 ^= int64(int8(key[offset+12])) << 32
	}
	if tail >= 12 {
		k2 ^= int64(int8(key[offset+11])) << 24
	}
	if tail >= 11 {
		k2 ^= int64(int8(key[offset+10])) << 16
	}
	if tail >= 10 {
		k2 ^= int64(int8(key[offset+9])) << 8
	}
	if tail >= 9 {
		k2 ^= int64(int8(key[offset+8])) << 0
		k2 *= murmurC2
		k2 = rotl64(k2, 33)
		k2 *= murmurC1
		h2 ^= k2
	}

	if tail >= 8 {
		k1 ^= int64(int8(key[offset+7])) << 56
	}
	if tail >= 7 {
		k1 ^= int64(int8(key[offset+6])) << 48
	}
	if tail >= 6 {
		k1 ^= int64(int8(key[offset+5])) << 40
	}
	if tail >= 5 {
		k1 ^= int64(int8(key[offset+4])) << 32
	}
	if tail >= 4 {
		k1 ^= int64(int8(key[offset+3])) << 24
	}
	if tail >= 3 {
		k1 ^= int64(int8(key[offset+2])) << 16
	}
	if tail >= 2 {
		k1 ^= int64(int8(key[offset+1])) << 8
	}
	if tail >= 1 {
		k1 ^= int64(int8(key[offset]))
		k1 *= murmurC1
		k1 = rotl64(k1, 31)
		k1 *= murmurC2
		h1 ^= k1
	}

	h1 ^= int64(length)
	h2 ^= int64(length)

	h1 += h2
	h2 += h1

	h1 = fmix(h1)
	h2 = fmix(h2)

	h1 += h2
	h2 += h1

	if h1 == minInt64 {
		h1 = maxInt64
	}

	var token Token
	binary.LittleEndian.PutUint64(token[:8], uint64(h1))
	return token
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

func (Murmur3) Compare(tokenA Token, keyA []byte, tokenB Token, keyB []byte) int {
	a := int64(binary.LittleEndian.Uint64(tokenA[:8]))
	b := int64(binary.LittleEndian.Uint64(tokenB[:8]))
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return compareKeys(keyA, keyB)
}
