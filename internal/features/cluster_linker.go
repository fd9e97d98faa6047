package features

import (
	"context"
	"strings"
	"sync"
)

// ClusterLinker flags wallets that belong to a configured set of known
// sybil funding clusters. The set is typically loaded from config at
// startup and can be extended at runtime as clusters are identified.
//
// Tracing a wallet's first funding transfer on-chain would subsume this;
// the cluster set is the deterministic stand-in until that lands.
type ClusterLinker struct {
	mu      sync.RWMutex
	cluster map[string]bool
}

// NewClusterLinker creates a linker from a list of known cluster wallets.
func NewClusterLinker(wallets []string) *ClusterLinker {
	l := &ClusterLinker{cluster: make(map[string]bool, len(wallets))}
	for _, w := range wallets {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			l.cluster[w] = true
		}
	}
	return l
}

// Linked reports whether the wallet is in the known cluster set.
func (l *ClusterLinker) Linked(_ context.Context, wallet string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cluster[strings.ToLower(wallet)], nil
}

// Add marks additional wallets as cluster members.
func (l *ClusterLinker) Add(wallets ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range wallets {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			l.cluster[w] = true
		}
	}
}

// Size returns the number of known cluster wallets.
func (l *ClusterLinker) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cluster)
}
