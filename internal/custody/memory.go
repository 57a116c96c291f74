// memory.go - In-memory custody ledger.
//
// A single map of balances behind a mutex. Suitable for tests and for
// single-process deployments where the authoritative balances live in the
// venue daemon itself.

package custody

import "sync"

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]map[string]uint64)}
}

// Mint credits freshly issued units to an owner. Test and bootstrap helper;
// the venue itself never mints.
func (l *MemoryLedger) Mint(owner, asset string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(owner, asset, amount)
}

func (l *MemoryLedger) Debit(owner, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == 0 {
		return nil
	}
	held := l.balances[owner][asset]
	if held < amount {
		return ErrInsufficientBalance
	}
	l.balances[owner][asset] = held - amount
	return nil
}

func (l *MemoryLedger) Credit(owner, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(owner, asset, amount)
	return nil
}

func (l *MemoryLedger) Balance(owner, asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner][asset]
}

func (l *MemoryLedger) credit(owner, asset string, amount uint64) {
	m, ok := l.balances[owner]
	if !ok {
		m = make(map[string]uint64)
		l.balances[owner] = m
	}
	m[asset] += amount
}
