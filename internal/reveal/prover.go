// prover.go - Client-side commitment construction and proof generation.
//
// A trader building a hidden order samples a random salt, computes the
// commitment and nullifier over the order parameters, registers the
// commitment with the venue, and later proves the opening with Groth16.
// The native MiMC computation here must stay in lockstep with the in-circuit
// hashing in circuit.go: every input is canonicalized to one scalar-field
// element per MiMC block.

package reveal

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"darkpool/internal/venue"
)

// OrderOpening is the full preimage of a commitment: the order parameters,
// the committing trader, and the private salt.
type OrderOpening struct {
	Trader venue.TraderID
	Params venue.OrderParams
	Salt   *big.Int
}

// NewSalt samples a random scalar-field element.
func NewSalt() (*big.Int, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, err
	}
	return e.BigInt(new(big.Int)), nil
}

// fieldOf reduces arbitrary bytes into the scalar field.
func fieldOf(b []byte) *big.Int {
	var e fr.Element
	e.SetBigInt(new(big.Int).SetBytes(b))
	return e.BigInt(new(big.Int))
}

func fieldBytes(v *big.Int) []byte {
	var e fr.Element
	e.SetBigInt(v)
	b := e.Bytes()
	return b[:]
}

// openingFields returns the commitment preimage (salt excluded) in hashing
// order.
func openingFields(op OrderOpening) []*big.Int {
	p := op.Params
	return []*big.Int{
		fieldOf([]byte(op.Trader)),
		fieldOf([]byte(p.Asset)),
		fieldOf([]byte(p.SizeUnit)),
		new(big.Int).SetUint64(uint64(p.Side)),
		new(big.Int).SetUint64(uint64(p.Kind)),
		new(big.Int).SetUint64(p.Amount),
		new(big.Int).SetUint64(p.Price),
		new(big.Int).SetUint64(p.MinFill),
		new(big.Int).SetUint64(uint64(p.Expiry.Unix())),
	}
}

// ComputeCommitment hashes the opening into the commitment registered with
// the venue.
func ComputeCommitment(op OrderOpening) venue.Hash {
	h := mimcNative.NewMiMC()
	for _, f := range openingFields(op) {
		h.Write(fieldBytes(f))
	}
	h.Write(fieldBytes(op.Salt))
	return venue.HashFromBytes(h.Sum(nil))
}

// ComputeNullifier derives the single-use nullifier for the opening.
func ComputeNullifier(op OrderOpening) venue.Hash {
	h := mimcNative.NewMiMC()
	h.Write(fieldBytes(op.Salt))
	h.Write(fieldBytes(fieldOf([]byte(op.Trader))))
	return venue.HashFromBytes(h.Sum(nil))
}

// fullWitness builds the complete (public and private) circuit assignment.
func fullWitness(op OrderOpening, commitment, nullifier venue.Hash) *CircuitReveal {
	fields := openingFields(op)
	return &CircuitReveal{
		Commitment: new(big.Int).SetBytes(commitment[:]),
		Nullifier:  new(big.Int).SetBytes(nullifier[:]),
		Trader:     fields[0],
		Asset:      fields[1],
		SizeUnit:   fields[2],
		Side:       fields[3],
		Kind:       fields[4],
		Amount:     fields[5],
		Price:      fields[6],
		MinFill:    fields[7],
		Expiry:     fields[8],
		Salt:       op.Salt,
	}
}

// Prove generates the Groth16 opening proof for a commitment.
func Prove(op OrderOpening, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) ([]byte, error) {
	commitment := ComputeCommitment(op)
	nullifier := ComputeNullifier(op)
	w, err := frontend.NewWitness(fullWitness(op, commitment, nullifier), ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Compile builds the reveal constraint system.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit CircuitReveal
	return frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
}
