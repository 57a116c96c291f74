// hash.go - Content-derived order identifiers.
//
// Order hashes are MiMC digests over the BW6-761 scalar field, the same
// hash the reveal circuit uses for commitments, so on-venue identifiers and
// in-proof values share one primitive. Every input is canonicalized to a
// field element before hashing; a collision is treated as a protocol
// violation, not handled.

package venue

import (
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// feBytes reduces v into the scalar field and returns its canonical 48-byte
// big-endian encoding, the block format MiMC consumes.
func feBytes(v *big.Int) []byte {
	var e fr.Element
	e.SetBigInt(v)
	b := e.Bytes()
	return b[:]
}

func feFromString(s string) []byte {
	return feBytes(new(big.Int).SetBytes([]byte(s)))
}

func feFromUint(v uint64) []byte {
	return feBytes(new(big.Int).SetUint64(v))
}

// orderDigest derives the order identifier from its content plus submission
// time and a venue-local sequence number, so two otherwise identical orders
// never collide.
func orderDigest(trader TraderID, p OrderParams, createdAt time.Time, seq uint64) Hash {
	h := mimcNative.NewMiMC()
	h.Write(feFromString(string(trader)))
	h.Write(feFromString(string(p.Asset)))
	h.Write(feFromString(string(p.SizeUnit)))
	h.Write(feFromUint(uint64(p.Side)))
	h.Write(feFromUint(uint64(p.Kind)))
	h.Write(feFromUint(p.Amount))
	h.Write(feFromUint(p.Price))
	h.Write(feFromUint(uint64(createdAt.UnixNano())))
	h.Write(feFromUint(seq))
	return HashFromBytes(h.Sum(nil))
}

// mulChecked multiplies two unsigned values, failing on overflow instead of
// wrapping. All order-value arithmetic goes through it.
func mulChecked(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	v := a * b
	if v/a != b {
		return 0, ErrValueOverflow
	}
	return v, nil
}
