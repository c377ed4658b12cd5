// Package hash provides the 128-bit non-cryptographic hash used to key the
// on-disk shader cache (spec.md §4.3 step 2, §6 "Shader cache store
// format"). xxhash/v2 only produces a 64-bit digest, so the 128-bit key is
// built from two independent digests: the plain hash and the hash of the
// input prefixed with a fixed salt, concatenated.
package hash

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// salt decorrelates the second lane from the first; without it H128 would
// just be H64 repeated twice whenever the digest size happens to collide.
var salt = [8]byte{0x63, 0x6c, 0x6f, 0x6e, 0x31, 0x32, 0x00, 0x01} // "clon12"

// Key128 is a 128-bit hash digest, used as a shader cache key.
type Key128 [16]byte

// String returns the lowercase hex encoding of the digest.
func (k Key128) String() string {
	return hex.EncodeToString(k[:])
}

// Sum128 hashes the concatenation of all parts (source text, preprocessor
// defines, enabled feature bits, ...) into a single 128-bit key. Parts are
// hashed in order with no separator, so callers that need to distinguish
// ("ab","c") from ("a","bc") must embed their own length prefixes or
// delimiters - the same convention the caller uses when building the
// concatenated (source, defines, feature bits) tuple from spec.md §4.3.
func Sum128(parts ...[]byte) Key128 {
	d1 := xxhash.New()
	d2 := xxhash.New()
	d2.Write(salt[:])
	for _, p := range parts {
		d1.Write(p)
		d2.Write(p)
	}

	var out Key128
	binary.LittleEndian.PutUint64(out[0:8], d1.Sum64())
	binary.LittleEndian.PutUint64(out[8:16], d2.Sum64())
	return out
}

// CombineLinked folds a link output's key together with the hashes of the
// objects it links, per spec.md §6 ("concatenated with linked-object hashes
// for link outputs").
func CombineLinked(base Key128, objectKeys ...Key128) Key128 {
	parts := make([][]byte, 0, len(objectKeys)+1)
	b := base
	parts = append(parts, b[:])
	for _, k := range objectKeys {
		kk := k
		parts = append(parts, kk[:])
	}
	return Sum128(parts...)
}
