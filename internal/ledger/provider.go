package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EthProvider dials one EthClient per chain and contract and reuses it.
type EthProvider struct {
	rpcURLs     map[uint64]string
	callTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*EthClient
}

func NewEthProvider(rpcURLs map[uint64]string, callTimeout time.Duration) *EthProvider {
	return &EthProvider{
		rpcURLs:     rpcURLs,
		callTimeout: callTimeout,
		clients:     make(map[string]*EthClient),
	}
}

// Add registers an already dialed client, typically the signing client of
// the configured chain.
func (p *EthProvider) Add(c *EthClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[providerKey(c.ChainID(), c.ContractAddress())] = c
}

func (p *EthProvider) ForChain(ctx context.Context, chainID uint64, contractAddress string) (Reader, error) {
	if _, ok := SupportedChains[chainID]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	if !IsAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := providerKey(chainID, contractAddress)
	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	url, ok := p.rpcURLs[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: no rpc endpoint configured for chain %d", ErrUnsupportedChain, chainID)
	}

	c, err := DialEth(ctx, EthOptions{
		RPCURL:          url,
		ChainID:         chainID,
		ContractAddress: contractAddress,
		CallTimeout:     p.callTimeout,
	})
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

func (p *EthProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.clients {
		c.Close()
		delete(p.clients, key)
	}
}

func providerKey(chainID uint64, contractAddress string) string {
	return fmt.Sprintf("%d:%s", chainID, NormalizeAddress(contractAddress))
}
