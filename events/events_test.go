package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"blockcoop/contract"
)

var (
	poolAddress = common.HexToAddress("0x00000000000000000000000000000000000c0091")
	managerA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	managerB    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenX      = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	feedX       = common.HexToAddress("0x0000000000000000000000000000000000000fee")
)

type fakeLogs struct {
	mu      sync.Mutex
	history []types.Log
	query   ethereum.FilterQuery
	live    chan<- types.Log
	subErr  error
	active  int

	filterErr error
	// onFilter runs while FilterLogs is answering, after the matching logs were read.
	onFilter func()
}

func (f *fakeLogs) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.query = q
	var out []types.Log
	for _, log := range f.history {
		if log.Topics[0] == q.Topics[0][0] {
			out = append(out, log)
		}
	}
	hook, err := f.onFilter, f.filterErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeLogs) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.live = ch
	f.active++
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
		return nil
	}), nil
}

func (f *fakeLogs) push(log types.Log) {
	f.mu.Lock()
	ch := f.live
	f.mu.Unlock()
	ch <- log
}

func managerLog(name string, manager common.Address, block uint64, index uint, tx byte) types.Log {
	parsed := contract.BlockCoopABI()
	return types.Log{
		Address:     poolAddress,
		Topics:      []common.Hash{parsed.Events[name].ID, common.BytesToHash(manager.Bytes())},
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		Index:       index,
	}
}

func whitelistLog(t *testing.T, token, feed common.Address, block uint64) types.Log {
	t.Helper()
	parsed := contract.BlockCoopABI()
	ev := parsed.Events[TokenWhitelisted]
	data, err := ev.Inputs.NonIndexed().Pack(feed)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     poolAddress,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(token.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{0xee}),
	}
}

func TestDecodeTokenWhitelisted(t *testing.T) {
	ev, err := Decode(TokenWhitelisted, whitelistLog(t, tokenX, feedX, 12))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Token != tokenX || ev.PriceFeed != feedX || ev.BlockNumber != 12 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := Decode(FundManagerAdded, whitelistLog(t, tokenX, feedX, 12)); err == nil {
		t.Fatal("expected mismatched topic to fail")
	}
	if _, err := Decode("Deposited", types.Log{}); !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestHistoryIsMostRecentFirst(t *testing.T) {
	source := &fakeLogs{history: []types.Log{
		managerLog(FundManagerAdded, managerA, 10, 0, 1),
		managerLog(FundManagerRemoved, managerA, 11, 0, 2),
		managerLog(FundManagerAdded, managerB, 15, 3, 3),
		managerLog(FundManagerAdded, managerA, 15, 1, 4),
	}}
	sub := NewSubscriber(source, poolAddress, 7, nil)
	history, err := sub.History(context.Background(), FundManagerAdded)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	if history[0].FundManager != managerB || history[1].LogIndex != 1 || history[2].BlockNumber != 10 {
		t.Fatalf("unexpected order %+v", history)
	}
	if source.query.FromBlock.Uint64() != 7 || source.query.Addresses[0] != poolAddress {
		t.Fatalf("unexpected query %+v", source.query)
	}
}

func TestSubscribeStreamsLiveEvents(t *testing.T) {
	source := &fakeLogs{history: []types.Log{managerLog(FundManagerAdded, managerA, 10, 0, 1)}}
	subscriber := NewSubscriber(source, poolAddress, 0, nil)
	sub, err := subscriber.Subscribe(context.Background(), FundManagerAdded)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(sub.History()) != 1 {
		t.Fatalf("expected history of one, got %d", len(sub.History()))
	}
	if subscriber.Listeners() != 1 {
		t.Fatalf("expected one listener, got %d", subscriber.Listeners())
	}

	source.push(managerLog(FundManagerAdded, managerB, 20, 0, 9))
	select {
	case ev := <-sub.Live():
		if ev.FundManager != managerB {
			t.Fatalf("unexpected live event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live event not delivered")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if subscriber.Listeners() != 0 {
		t.Fatalf("expected no listeners, got %d", subscriber.Listeners())
	}
	if _, ok := <-sub.Live(); ok {
		t.Fatal("expected live channel closed")
	}
	source.mu.Lock()
	active := source.active
	source.mu.Unlock()
	if active != 0 {
		t.Fatalf("expected backend subscription released, got %d", active)
	}
}

func TestSubscribeKeepsEventsMinedDuringBackfill(t *testing.T) {
	known := managerLog(FundManagerAdded, managerA, 10, 0, 1)
	source := &fakeLogs{history: []types.Log{known}}
	source.onFilter = func() {
		source.mu.Lock()
		ch := source.live
		source.mu.Unlock()
		if ch == nil {
			t.Error("history loaded before the live listener was attached")
			return
		}
		ch <- known
		ch <- managerLog(FundManagerAdded, managerB, 11, 0, 2)
	}
	subscriber := NewSubscriber(source, poolAddress, 0, nil)
	sub, err := subscriber.Subscribe(context.Background(), FundManagerAdded)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if len(sub.History()) != 1 {
		t.Fatalf("expected history of one, got %d", len(sub.History()))
	}

	select {
	case ev := <-sub.Live():
		if ev.FundManager != managerB || ev.BlockNumber != 11 {
			t.Fatalf("expected the event mined during backfill, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event mined during backfill was lost")
	}
	select {
	case ev := <-sub.Live():
		t.Fatalf("unexpected duplicate %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeReleasesListenerWhenHistoryFails(t *testing.T) {
	source := &fakeLogs{filterErr: errors.New("query timeout")}
	subscriber := NewSubscriber(source, poolAddress, 0, nil)
	if _, err := subscriber.Subscribe(context.Background(), FundManagerAdded); err == nil {
		t.Fatal("expected history error")
	}
	source.mu.Lock()
	active := source.active
	source.mu.Unlock()
	if active != 0 {
		t.Fatalf("expected backend subscription released, got %d", active)
	}
	if subscriber.Listeners() != 0 {
		t.Fatalf("expected no listeners, got %d", subscriber.Listeners())
	}
}

func TestSubscribeFailsWithoutLiveSupport(t *testing.T) {
	source := &fakeLogs{subErr: errors.New("notifications not supported")}
	subscriber := NewSubscriber(source, poolAddress, 0, nil)
	_, err := subscriber.Subscribe(context.Background(), TokenWhitelisted)
	if !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("expected ErrLiveUnavailable, got %v", err)
	}
	if subscriber.Listeners() != 0 {
		t.Fatalf("expected no listeners, got %d", subscriber.Listeners())
	}
}

func TestTimelineDedupsAndIgnoresRemoved(t *testing.T) {
	first, _ := Decode(FundManagerAdded, managerLog(FundManagerAdded, managerA, 10, 0, 1))
	second, _ := Decode(FundManagerAdded, managerLog(FundManagerAdded, managerB, 12, 0, 2))
	timeline := NewTimeline([]Event{second, first}, 0)
	if timeline.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", timeline.Len())
	}
	if timeline.Add(second) {
		t.Fatal("duplicate event must be ignored")
	}
	third := second
	third.LogIndex = 1
	if !timeline.Add(third) {
		t.Fatal("same transaction with another log index is a new event")
	}
	removed := third
	removed.LogIndex = 5
	removed.Removed = true
	if timeline.Add(removed) {
		t.Fatal("removed log must be ignored")
	}
	got := timeline.Events()
	if len(got) != 3 || got[0].LogIndex != 1 || got[2].FundManager != managerA {
		t.Fatalf("unexpected timeline %+v", got)
	}
}

func TestTimelineLimit(t *testing.T) {
	timeline := NewTimeline(nil, 2)
	for i := 0; i < 4; i++ {
		ev, _ := Decode(FundManagerAdded, managerLog(FundManagerAdded, managerA, uint64(i), 0, byte(i+1)))
		timeline.Add(ev)
	}
	got := timeline.Events()
	if len(got) != 2 || got[0].BlockNumber != 3 {
		t.Fatalf("unexpected timeline %+v", got)
	}
}
