package reveal

import (
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/rs/zerolog"

	"darkpool/internal/custody"
	"darkpool/internal/venue"
)

var (
	setupOnce sync.Once
	testCCS   constraint.ConstraintSystem
	testPK    groth16.ProvingKey
	testVK    groth16.VerifyingKey
	setupErr  error
)

// testKeys compiles the circuit and runs the trusted setup once for the
// whole package; both are expensive.
func testKeys(t *testing.T) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey) {
	t.Helper()
	setupOnce.Do(func() {
		testCCS, setupErr = Compile()
		if setupErr != nil {
			return
		}
		testPK, testVK, setupErr = groth16.Setup(testCCS)
	})
	if setupErr != nil {
		t.Fatalf("circuit setup failed: %v", setupErr)
	}
	return testCCS, testPK, testVK
}

func testOpening(salt int64) OrderOpening {
	return OrderOpening{
		Trader: "alice",
		Params: venue.OrderParams{
			Asset:    "BTC",
			SizeUnit: "USD",
			Kind:     venue.Limit,
			Side:     venue.Buy,
			Amount:   10,
			Price:    100,
			MinFill:  0,
			Expiry:   time.Unix(1_700_003_600, 0),
		},
		Salt: big.NewInt(salt),
	}
}

func TestCommitmentDeterministic(t *testing.T) {
	op := testOpening(42)
	c1 := ComputeCommitment(op)
	c2 := ComputeCommitment(op)
	if c1 != c2 {
		t.Fatal("commitment not deterministic")
	}
	if c1.IsZero() {
		t.Fatal("commitment is zero")
	}

	op2 := testOpening(43)
	if ComputeCommitment(op2) == c1 {
		t.Fatal("different salts produced the same commitment")
	}

	op3 := testOpening(42)
	op3.Params.Amount = 11
	if ComputeCommitment(op3) == c1 {
		t.Fatal("different params produced the same commitment")
	}
}

func TestNullifierBoundToSaltAndTrader(t *testing.T) {
	op := testOpening(42)
	n1 := ComputeNullifier(op)

	op2 := testOpening(42)
	op2.Trader = "bob"
	if ComputeNullifier(op2) == n1 {
		t.Fatal("different traders produced the same nullifier")
	}

	op3 := testOpening(43)
	if ComputeNullifier(op3) == n1 {
		t.Fatal("different salts produced the same nullifier")
	}
}

func TestProveAndVerify(t *testing.T) {
	ccs, pk, vk := testKeys(t)

	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	op := testOpening(0)
	op.Salt = salt

	proof, err := Prove(op, ccs, pk)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	verifier := NewGroth16Verifier(vk)
	in := venue.RevealInputs{
		Commitment: ComputeCommitment(op),
		Nullifier:  ComputeNullifier(op),
		Trader:     op.Trader,
		Params:     op.Params,
	}
	if err := verifier.Verify(proof, in); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedInputs(t *testing.T) {
	ccs, pk, vk := testKeys(t)

	op := testOpening(7)
	proof, err := Prove(op, ccs, pk)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	verifier := NewGroth16Verifier(vk)
	base := venue.RevealInputs{
		Commitment: ComputeCommitment(op),
		Nullifier:  ComputeNullifier(op),
		Trader:     op.Trader,
		Params:     op.Params,
	}

	cases := map[string]func(*venue.RevealInputs){
		"amount":     func(in *venue.RevealInputs) { in.Params.Amount = 999 },
		"price":      func(in *venue.RevealInputs) { in.Params.Price = 1 },
		"side":       func(in *venue.RevealInputs) { in.Params.Side = venue.Sell },
		"trader":     func(in *venue.RevealInputs) { in.Trader = "mallory" },
		"nullifier":  func(in *venue.RevealInputs) { in.Nullifier = venue.Hash{47: 1} },
		"commitment": func(in *venue.RevealInputs) { in.Commitment = venue.Hash{47: 1} },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		if err := verifier.Verify(proof, in); err == nil {
			t.Errorf("tampered %s accepted", name)
		}
	}
}

func TestVerifyRejectsGarbageProof(t *testing.T) {
	_, _, vk := testKeys(t)
	verifier := NewGroth16Verifier(vk)
	op := testOpening(7)
	in := venue.RevealInputs{
		Commitment: ComputeCommitment(op),
		Nullifier:  ComputeNullifier(op),
		Trader:     op.Trader,
		Params:     op.Params,
	}
	if err := verifier.Verify([]byte("not a proof"), in); err == nil {
		t.Fatal("garbage proof accepted")
	}
}

func TestNullifierBookkeeping(t *testing.T) {
	verifier := NewGroth16Verifier(nil)
	n := venue.Hash{0: 1}
	if verifier.IsNullifierUsed(n) {
		t.Fatal("fresh nullifier reported used")
	}
	verifier.MarkNullifier(n)
	if !verifier.IsNullifierUsed(n) {
		t.Fatal("marked nullifier reported fresh")
	}
}

func TestSetupOrLoadKeysReloads(t *testing.T) {
	ccs, _, _ := testKeys(t)
	dir := t.TempDir()
	pkPath := filepath.Join(dir, "pk.bin")
	vkPath := filepath.Join(dir, "vk.bin")

	_, vk1, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	pk2, vk2, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	// Second call must load, not regenerate: a proof under the reloaded
	// proving key has to verify under the first verifying key.
	op := testOpening(7)
	proof, err := Prove(op, ccs, pk2)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	verifier := NewGroth16Verifier(vk1)
	in := venue.RevealInputs{
		Commitment: ComputeCommitment(op),
		Nullifier:  ComputeNullifier(op),
		Trader:     op.Trader,
		Params:     op.Params,
	}
	if err := verifier.Verify(proof, in); err != nil {
		t.Fatalf("reloaded keys do not match originals: %v", err)
	}
	if err := NewGroth16Verifier(vk2).Verify(proof, in); err != nil {
		t.Fatalf("reloaded verifying key rejects proof: %v", err)
	}
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

// TestFullRevealFlow drives a committed order through the venue with a real
// proof: commit with escrow, wait out the reveal delay, prove the opening,
// reveal, and settle against a public counterparty.
func TestFullRevealFlow(t *testing.T) {
	ccs, pk, vk := testKeys(t)

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	ledger := custody.NewMemoryLedger()
	op := venue.TraderID("operator")
	v, err := venue.New(venue.DefaultConfig(), ledger, clock, zerolog.Nop(), nil, op)
	if err != nil {
		t.Fatalf("venue: %v", err)
	}
	if err := v.SetVerifier(op, NewGroth16Verifier(vk)); err != nil {
		t.Fatalf("verifier: %v", err)
	}
	for _, a := range []venue.AssetID{"BTC", "USD"} {
		if err := v.WhitelistAsset(op, a); err != nil {
			t.Fatalf("whitelist: %v", err)
		}
	}

	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	opening := OrderOpening{
		Trader: "alice",
		Params: venue.OrderParams{
			Asset:    "BTC",
			SizeUnit: "USD",
			Kind:     venue.Limit,
			Side:     venue.Buy,
			Amount:   10,
			Price:    100,
			Expiry:   clock.now.Add(time.Hour),
		},
		Salt: salt,
	}
	commitment := ComputeCommitment(opening)
	nullifier := ComputeNullifier(opening)

	ledger.Mint("alice", "USD", 1000)
	if err := v.CommitOrder(opening.Trader, commitment, "USD", 1000); err != nil {
		t.Fatalf("commit: %v", err)
	}

	clock.now = clock.now.Add(venue.DefaultConfig().RevealDelay)

	proof, err := Prove(opening, ccs, pk)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	buyHash, err := v.RevealOrder(opening.Trader, commitment, proof, nullifier, opening.Params)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}

	// Replay of the same commitment is refused even with a valid proof.
	if _, err := v.RevealOrder(opening.Trader, commitment, proof, nullifier, opening.Params); err == nil {
		t.Fatal("commitment replay accepted")
	}

	ledger.Mint("bob", "BTC", 10)
	sellHash, err := v.PlaceOrder("bob", venue.OrderParams{
		Asset:    "BTC",
		SizeUnit: "USD",
		Kind:     venue.Limit,
		Side:     venue.Sell,
		Amount:   10,
		Price:    95,
		Expiry:   clock.now.Add(time.Hour),
	}, 0)
	if err != nil {
		t.Fatalf("place sell: %v", err)
	}

	matchID, err := v.MatchOrders(op, buyHash, sellHash, 10)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	m, ok := v.Match(matchID)
	if !ok || !m.Settled {
		t.Fatal("match not settled")
	}
	if m.Price != 97 {
		t.Fatalf("midpoint price = %d, want 97", m.Price)
	}

	// 970 traded at 10 bps fee (truncates to zero), 30 surplus back.
	if got := ledger.Balance("alice", "BTC"); got != 10 {
		t.Fatalf("alice BTC = %d, want 10", got)
	}
	if got := ledger.Balance("alice", "USD"); got != 30 {
		t.Fatalf("alice USD = %d, want 30", got)
	}
	if got := ledger.Balance("bob", "USD"); got != 970 {
		t.Fatalf("bob USD = %d, want 970", got)
	}
	if got := ledger.Balance(venue.EscrowAccount, "USD"); got != 0 {
		t.Fatalf("escrow USD = %d, want 0", got)
	}
}
