// verifier.go - Groth16 verifier adapter and key management.
//
// Implements the venue's ProofVerifier interface: rebuilds the public
// witness from the reveal inputs, verifies the proof against the verifying
// key, and tracks used nullifiers. Keys are generated once and reused from
// disk.

package reveal

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"darkpool/internal/venue"
)

// Groth16Verifier verifies reveal proofs and records consumed nullifiers.
type Groth16Verifier struct {
	mu   sync.Mutex
	vk   groth16.VerifyingKey
	used map[venue.Hash]bool
}

func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk, used: make(map[venue.Hash]bool)}
}

// publicWitness rebuilds the circuit's public assignment from the claimed
// reveal inputs. Field encoding mirrors the prover exactly.
func publicWitness(in venue.RevealInputs) *CircuitReveal {
	fields := openingFields(OrderOpening{Trader: in.Trader, Params: in.Params})
	return &CircuitReveal{
		Commitment: new(big.Int).SetBytes(in.Commitment[:]),
		Nullifier:  new(big.Int).SetBytes(in.Nullifier[:]),
		Trader:     fields[0],
		Asset:      fields[1],
		SizeUnit:   fields[2],
		Side:       fields[3],
		Kind:       fields[4],
		Amount:     fields[5],
		Price:      fields[6],
		MinFill:    fields[7],
		Expiry:     fields[8],
	}
}

// Verify checks the proof against the reveal's public inputs.
func (g *Groth16Verifier) Verify(proofBytes []byte, in venue.RevealInputs) error {
	w, err := frontend.NewWitness(publicWitness(in), ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, g.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

func (g *Groth16Verifier) IsNullifierUsed(n venue.Hash) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used[n]
}

func (g *Groth16Verifier) MarkNullifier(n venue.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used[n] = true
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys loads the Groth16 keypair from disk, generating and
// persisting a fresh one if either file is missing.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
