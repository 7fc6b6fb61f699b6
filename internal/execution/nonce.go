package execution

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	signerNonceLocksMu sync.Mutex
	signerNonceLocks   = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock serialises nonce assignment and broadcast for one
// signer on one chain. The returned func releases the lock.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s:%s", chainID.String(), strings.ToLower(addr.Hex()))
	signerNonceLocksMu.Lock()
	mu, ok := signerNonceLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		signerNonceLocks[key] = mu
	}
	signerNonceLocksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
