package events

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"blockcoop/observability"
)

const liveBuffer = 64

// LogSource is the log query surface of the RPC backend.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

type listenerMetrics interface {
	ListenerAdded(name string)
	ListenerRemoved(name string)
	RecordDelivered(name, source string)
}

// Subscriber serves history and live streams for one contract deployment.
type Subscriber struct {
	source     LogSource
	address    common.Address
	startBlock uint64
	logger     *slog.Logger
	metrics    listenerMetrics

	listeners atomic.Int64
}

// NewSubscriber builds a subscriber reading logs of address from startBlock on.
func NewSubscriber(source LogSource, address common.Address, startBlock uint64, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		source:     source,
		address:    address,
		startBlock: startBlock,
		logger:     logger.With(slog.String("component", "events")),
		metrics:    observability.Events(),
	}
}

// Listeners returns the number of live subscriptions not yet unsubscribed.
func (s *Subscriber) Listeners() int { return int(s.listeners.Load()) }

func (s *Subscriber) query(topic common.Hash, from *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{topic}},
	}
}

// History returns every past occurrence of name, most recent first.
func (s *Subscriber) History(ctx context.Context, name string) ([]Event, error) {
	topic, err := topicOf(name)
	if err != nil {
		return nil, err
	}
	logs, err := s.source.FilterLogs(ctx, s.query(topic, new(big.Int).SetUint64(s.startBlock)))
	if err != nil {
		return nil, fmt.Errorf("events: query %s history: %w", name, err)
	}
	out := make([]Event, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ev, err := Decode(name, log)
		if err != nil {
			s.logger.Warn("skipping undecodable log", slog.String("event", name), slog.Any("error", err))
			continue
		}
		out = append(out, ev)
		s.metrics.RecordDelivered(name, "history")
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return out, nil
}

// Subscription is a live event stream. Callers must Unsubscribe when done.
type Subscription struct {
	name    string
	history []Event
	seen    map[eventKey]struct{}
	live    chan Event
	sub     ethereum.Subscription
	parent  *Subscriber

	quit chan struct{}
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe attaches a live listener for name and then loads its history. Logs
// mined while the history loads wait in the live buffer, and those already
// present in the history are not delivered twice.
func (s *Subscriber) Subscribe(ctx context.Context, name string) (*Subscription, error) {
	topic, err := topicOf(name)
	if err != nil {
		return nil, err
	}
	logs := make(chan types.Log, liveBuffer)
	sub, err := s.source.SubscribeFilterLogs(ctx, s.query(topic, nil), logs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLiveUnavailable, name, err)
	}
	history, err := s.History(ctx, name)
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	seen := make(map[eventKey]struct{}, len(history))
	for _, ev := range history {
		seen[ev.key()] = struct{}{}
	}
	out := &Subscription{
		name:    name,
		history: history,
		seen:    seen,
		live:    make(chan Event, liveBuffer),
		sub:     sub,
		parent:  s,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.listeners.Add(1)
	s.metrics.ListenerAdded(name)
	s.logger.Debug("live listener attached", slog.String("event", name), slog.Int("history", len(history)))
	go out.run(logs)
	return out, nil
}

func (sub *Subscription) run(logs <-chan types.Log) {
	defer close(sub.done)
	defer close(sub.live)
	for {
		select {
		case <-sub.quit:
			return
		case err, ok := <-sub.sub.Err():
			if ok && err != nil {
				sub.mu.Lock()
				sub.err = err
				sub.mu.Unlock()
				sub.parent.logger.Warn("live listener failed", slog.String("event", sub.name), slog.Any("error", err))
			}
			return
		case log := <-logs:
			ev, err := Decode(sub.name, log)
			if err != nil {
				sub.parent.logger.Warn("skipping undecodable log", slog.String("event", sub.name), slog.Any("error", err))
				continue
			}
			if _, dup := sub.seen[ev.key()]; dup && !ev.Removed {
				continue
			}
			select {
			case sub.live <- ev:
				sub.parent.metrics.RecordDelivered(sub.name, "live")
			case <-sub.quit:
				return
			}
		}
	}
}

// Name returns the subscribed event name.
func (sub *Subscription) Name() string { return sub.name }

// History returns the backfill, most recent first.
func (sub *Subscription) History() []Event { return append([]Event(nil), sub.history...) }

// Live delivers new events in arrival order. The channel closes after Unsubscribe
// or when the underlying subscription fails.
func (sub *Subscription) Live() <-chan Event { return sub.live }

// Err returns the failure that ended the live stream, if any.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Unsubscribe detaches the live listener and waits for the stream to close. It is
// safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.quit)
		sub.sub.Unsubscribe()
		<-sub.done
		sub.parent.listeners.Add(-1)
		sub.parent.metrics.ListenerRemoved(sub.name)
	})
}
