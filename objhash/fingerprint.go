package objhash

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a stable 128-bit hash of a primitive list's source text.
// Fingerprint identity implies list identity, which is the one correctness
// property the de-duplication table depends on - a wide hash keeps
// collisions between two genuinely different lists implausible.
type Fingerprint [16]byte

// NewFingerprint hashes raw source bytes (e.g. a parsed list's normalized
// on-disk text) into a Fingerprint.
func NewFingerprint(src []byte) Fingerprint {
	sum := blake2b.Sum512(src)
	var fp Fingerprint
	copy(fp[:], sum[:16])
	return fp
}

// probes splits the fingerprint into the four 32-bit row probes, the same
// way the original split one 128-bit MurmurHash3 digest into hash[0..3].
func (fp Fingerprint) probes() [4]uint32 {
	hi := binary.LittleEndian.Uint64(fp[0:8])
	lo := binary.LittleEndian.Uint64(fp[8:16])
	return [4]uint32{
		uint32(hi),
		uint32(hi >> 32),
		uint32(lo),
		uint32(lo >> 32),
	}
}
