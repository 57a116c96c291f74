// file.go - File-backed custody ledger.
//
// Balances are persisted as a single JSON file, rewritten after every
// mutating call while holding the ledger lock, so the on-disk state always
// reflects a consistent snapshot. Suited to single-process deployments that
// need balances to survive a restart.

package custody

import (
	"encoding/json"
	"os"
	"sync"
)

// FileLedger is an AssetLedger persisted to a JSON file.
type FileLedger struct {
	mu       sync.Mutex
	path     string
	balances map[string]map[string]uint64
}

// OpenFileLedger loads the ledger at path, starting empty if the file does
// not exist yet.
func OpenFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{path: path, balances: make(map[string]map[string]uint64)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &l.balances); err != nil {
		return nil, err
	}
	return l, nil
}

// save rewrites the backing file. Caller holds l.mu.
func (l *FileLedger) save() error {
	data, err := json.MarshalIndent(l.balances, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Mint credits freshly issued units to an owner. Bootstrap helper.
func (l *FileLedger) Mint(owner, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(owner, asset, amount)
	return l.save()
}

func (l *FileLedger) Debit(owner, asset string, amount uint64) error {
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
	if err := l.save(); err != nil {
		l.balances[owner][asset] = held
		return err
	}
	return nil
}

func (l *FileLedger) Credit(owner, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == 0 {
		return nil
	}
	held := l.balances[owner][asset]
	l.credit(owner, asset, amount)
	if err := l.save(); err != nil {
		l.balances[owner][asset] = held
		return err
	}
	return nil
}

func (l *FileLedger) Balance(owner, asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner][asset]
}

func (l *FileLedger) credit(owner, asset string, amount uint64) {
	m, ok := l.balances[owner]
	if !ok {
		m = make(map[string]uint64)
		l.balances[owner] = m
	}
	m[asset] += amount
}
