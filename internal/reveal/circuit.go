// circuit.go - Groth16 circuit for opening an order commitment.
//
// The circuit proves that the disclosed order parameters and the prover's
// identity open the public commitment, and that the public nullifier was
// derived from the same salt. The salt is the only private input; its
// secrecy before reveal is what hides the order, and the nullifier makes
// each commitment openable exactly once.

package reveal

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

type CircuitReveal struct {
	// Public inputs
	Commitment frontend.Variable `gnark:",public"`
	Nullifier  frontend.Variable `gnark:",public"`
	Trader     frontend.Variable `gnark:",public"`
	Asset      frontend.Variable `gnark:",public"`
	SizeUnit   frontend.Variable `gnark:",public"`
	Side       frontend.Variable `gnark:",public"`
	Kind       frontend.Variable `gnark:",public"`
	Amount     frontend.Variable `gnark:",public"`
	Price      frontend.Variable `gnark:",public"`
	MinFill    frontend.Variable `gnark:",public"`
	Expiry     frontend.Variable `gnark:",public"`

	// Private inputs
	Salt frontend.Variable
}

func (c *CircuitReveal) Define(api frontend.API) error {
	// Commitment = MiMC(trader, asset, sizeUnit, side, kind, amount, price,
	// minFill, expiry, salt)
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Trader)
	hasher.Write(c.Asset)
	hasher.Write(c.SizeUnit)
	hasher.Write(c.Side)
	hasher.Write(c.Kind)
	hasher.Write(c.Amount)
	hasher.Write(c.Price)
	hasher.Write(c.MinFill)
	hasher.Write(c.Expiry)
	hasher.Write(c.Salt)
	api.AssertIsEqual(c.Commitment, hasher.Sum())

	// Nullifier = MiMC(salt, trader), a PRF over the private salt.
	hasher.Reset()
	hasher.Write(c.Salt)
	hasher.Write(c.Trader)
	api.AssertIsEqual(c.Nullifier, hasher.Sum())

	return nil
}
