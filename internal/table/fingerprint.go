package table

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// FingerprintSize is the length of a row fingerprint in bytes.
const FingerprintSize = blake2b.Size256

// Fingerprint hashes a row so that two rows share a fingerprint only when
// they are equal cell by cell. Every cell is length-prefixed, so
// ["ab", "c"] and ["a", "bc"] differ.
func Fingerprint(row []string) [FingerprintSize]byte {
	h, _ := blake2b.New256(nil)
	var n [binary.MaxVarintLen64]byte
	for _, cell := range row {
		l := binary.PutUvarint(n[:], uint64(len(cell)))
		h.Write(n[:l])
		h.Write([]byte(cell))
	}
	var out [FingerprintSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
