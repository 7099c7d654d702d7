// Package tokens memoizes ERC-20 metadata for the lifetime of a wallet session and
// formats token quantities with each token's own decimals.
package tokens

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"blockcoop/session"
)

// Metadata is the immutable part of an ERC-20 token.
type Metadata struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// Reader performs the underlying ERC-20 calls.
type Reader interface {
	TokenName(ctx context.Context, token common.Address) (string, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// ChangeSource announces session transitions.
type ChangeSource interface {
	Subscribe(ch chan<- session.Change) event.Subscription
}

// Cache memoizes Metadata. Balances and allowances are never cached.
type Cache struct {
	reader Reader
	items  *cache.Cache
	group  singleflight.Group

	// generation is bumped by Flush. Reads started under an older generation are
	// returned to their callers but never stored.
	mu         sync.Mutex
	generation uint64
}

// NewCache builds an empty cache over reader.
func NewCache(reader Reader) *Cache {
	return &Cache{reader: reader, items: cache.New(cache.NoExpiration, 0)}
}

func cacheKey(token common.Address) string {
	return strings.ToLower(token.Hex())
}

// Describe returns the token's metadata, reading it once per session. Concurrent
// misses for the same token share one set of reads. Failures are not cached.
func (c *Cache) Describe(ctx context.Context, token common.Address) (Metadata, error) {
	key := cacheKey(token)
	if cached, ok := c.items.Get(key); ok {
		return cached.(Metadata), nil
	}
	generation := c.currentGeneration()
	v, err, _ := c.group.Do(fmt.Sprintf("%d/%s", generation, key), func() (any, error) {
		if cached, ok := c.items.Get(key); ok {
			return cached.(Metadata), nil
		}
		name, err := c.reader.TokenName(ctx, token)
		if err != nil {
			return Metadata{}, fmt.Errorf("tokens: name of %s: %w", token.Hex(), err)
		}
		symbol, err := c.reader.TokenSymbol(ctx, token)
		if err != nil {
			return Metadata{}, fmt.Errorf("tokens: symbol of %s: %w", token.Hex(), err)
		}
		decimals, err := c.reader.TokenDecimals(ctx, token)
		if err != nil {
			return Metadata{}, fmt.Errorf("tokens: decimals of %s: %w", token.Hex(), err)
		}
		meta := Metadata{Address: token, Name: name, Symbol: symbol, Decimals: decimals}
		c.store(generation, key, meta)
		return meta, nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return v.(Metadata), nil
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache) store(generation uint64, key string, meta Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generation {
		c.items.Set(key, meta, cache.NoExpiration)
	}
}

// Balance reads owner's current balance of token.
func (c *Cache) Balance(ctx context.Context, token, owner common.Address) (Amount, error) {
	meta, err := c.Describe(ctx, token)
	if err != nil {
		return Amount{}, err
	}
	raw, err := c.reader.BalanceOf(ctx, token, owner)
	if err != nil {
		return Amount{}, fmt.Errorf("tokens: balance of %s: %w", token.Hex(), err)
	}
	return Amount{Raw: raw, Decimals: meta.Decimals, Symbol: meta.Symbol}, nil
}

// Allowance reads the current allowance granted by owner to spender.
func (c *Cache) Allowance(ctx context.Context, token, owner, spender common.Address) (Amount, error) {
	meta, err := c.Describe(ctx, token)
	if err != nil {
		return Amount{}, err
	}
	raw, err := c.reader.Allowance(ctx, token, owner, spender)
	if err != nil {
		return Amount{}, fmt.Errorf("tokens: allowance on %s: %w", token.Hex(), err)
	}
	return Amount{Raw: raw, Decimals: meta.Decimals, Symbol: meta.Symbol}, nil
}

// ParseAmount converts user input into base units of token.
func (c *Cache) ParseAmount(ctx context.Context, token common.Address, input string) (Amount, error) {
	meta, err := c.Describe(ctx, token)
	if err != nil {
		return Amount{}, err
	}
	raw, err := ParseUnits(input, meta.Decimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Raw: raw, Decimals: meta.Decimals, Symbol: meta.Symbol}, nil
}

// Len reports the number of memoized tokens.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Flush drops every memoized entry and fences reads still in flight.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.items.Flush()
}

// Attach flushes the cache on every session change until the returned function
// is called.
func (c *Cache) Attach(source ChangeSource) (detach func()) {
	changes := make(chan session.Change, 8)
	sub := source.Subscribe(changes)
	go func() {
		for {
			select {
			case <-changes:
				c.Flush()
			case <-sub.Err():
				return
			}
		}
	}()
	return sub.Unsubscribe
}
