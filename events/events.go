// Package events reads BlockCoop contract events: a historical backfill from the
// configured start block followed by a live log subscription.
package events

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"blockcoop/contract"
)

const (
	FundManagerAdded   = "FundManagerAdded"
	FundManagerRemoved = "FundManagerRemoved"
	TokenWhitelisted   = "TokenWhitelisted"
)

var (
	ErrUnsupportedEvent = errors.New("events: unsupported event")
	ErrLiveUnavailable  = errors.New("events: live subscription unavailable")
)

// Names lists the events that can be subscribed to.
func Names() []string {
	return []string{FundManagerAdded, FundManagerRemoved, TokenWhitelisted}
}

// Supported reports whether name can be subscribed to.
func Supported(name string) bool {
	for _, candidate := range Names() {
		if candidate == name {
			return true
		}
	}
	return false
}

// Event is a decoded contract log.
type Event struct {
	Name        string         `json:"name"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    uint           `json:"logIndex"`
	Removed     bool           `json:"removed,omitempty"`
	FundManager common.Address `json:"fundManager,omitempty"`
	Token       common.Address `json:"token,omitempty"`
	PriceFeed   common.Address `json:"priceFeed,omitempty"`
}

type eventKey struct {
	tx    common.Hash
	index uint
}

func (e Event) key() eventKey { return eventKey{tx: e.TxHash, index: e.LogIndex} }

func topicOf(name string) (common.Hash, error) {
	if !Supported(name) {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	parsed := contract.BlockCoopABI()
	ev, ok := parsed.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	return ev.ID, nil
}

// Decode converts a raw log of event name.
func Decode(name string, log types.Log) (Event, error) {
	parsed := contract.BlockCoopABI()
	ev, ok := parsed.Events[name]
	if !ok || !Supported(name) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return Event{}, fmt.Errorf("events: log %s#%d is not %s", log.TxHash.Hex(), log.Index, name)
	}
	values := make(map[string]any)
	if err := parsed.UnpackIntoMap(values, name, log.Data); err != nil {
		return Event{}, fmt.Errorf("events: decode %s data: %w", name, err)
	}
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return Event{}, fmt.Errorf("events: decode %s topics: %w", name, err)
	}

	out := Event{
		Name:        name,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Removed:     log.Removed,
	}
	switch name {
	case FundManagerAdded, FundManagerRemoved:
		out.FundManager, _ = values["fundManager"].(common.Address)
	case TokenWhitelisted:
		out.Token, _ = values["token"].(common.Address)
		out.PriceFeed, _ = values["priceFeed"].(common.Address)
	}
	return out, nil
}
