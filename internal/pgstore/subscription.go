package pgstore

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// redisSub adapts a Redis PubSub to gateway.Subscription. Malformed
// payloads are logged and skipped.
type redisSub struct {
	ps   *redis.PubSub
	out  chan gateway.Change
	stop chan struct{}
	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newRedisSub(ps *redis.PubSub) *redisSub {
	s := &redisSub{
		ps:   ps,
		out:  make(chan gateway.Change, gateway.DefaultFeedBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run(ps.Channel())
	return s
}

func (s *redisSub) run(msgs <-chan *redis.Message) {
	defer close(s.done)
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				s.fail(errors.New("redis channel closed"))
				return
			}
			ch, err := decodeChange(msg.Payload)
			if err != nil {
				slog.Warn("skipping malformed change", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.out <- ch:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *redisSub) fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		// Closed by the caller; Err stays nil.
	default:
		s.err = gateway.NewSubscriptionError("feed", cause)
	}
}

func (s *redisSub) Changes() <-chan gateway.Change {
	return s.out
}

func (s *redisSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		close(s.stop)
		s.mu.Unlock()
		err = s.ps.Close()
		<-s.done
	})
	return err
}
