package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrNotStreamOwner = errors.New("stream belongs to another user")
)

// StreamTTL bounds how long a stream registration outlives a crashed
// instance.
const StreamTTL = 10 * time.Minute

func streamKey(streamID string) string     { return fmt.Sprintf("stream:%s", streamID) }
func cancelChannel(streamID string) string { return fmt.Sprintf("chat:cancel:%s", streamID) }

// Register records the stream owner and calls cancel when any instance
// publishes a cancel for streamID. The returned release must be called when
// the stream ends.
func (s *Store) Register(ctx context.Context, streamID, ownerID string, cancel context.CancelFunc) (func(), error) {
	if err := s.rdb.Set(ctx, streamKey(streamID), ownerID, StreamTTL).Err(); err != nil {
		return nil, err
	}

	sub := s.rdb.Subscribe(ctx, cancelChannel(streamID))
	// wait for the subscription to be live so a cancel sent right after
	// Register is not lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = s.rdb.Del(context.WithoutCancel(ctx), streamKey(streamID)).Err()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case _, ok := <-sub.Channel():
			if ok {
				cancel()
			}
		case <-done:
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
			cctx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			_ = s.rdb.Del(cctx, streamKey(streamID)).Err()
		})
	}
	return release, nil
}

// Cancel asks whichever instance serves streamID to stop it.
func (s *Store) Cancel(ctx context.Context, streamID, ownerID string) error {
	owner, err := s.rdb.Get(ctx, streamKey(streamID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrStreamNotFound
		}
		return err
	}
	if owner != ownerID {
		return ErrNotStreamOwner
	}
	return s.rdb.Publish(ctx, cancelChannel(streamID), ownerID).Err()
}

// LocalCancelBus is the in-process equivalent for single instance runs.
type LocalCancelBus struct {
	mu      sync.Mutex
	streams map[string]localStream
}

type localStream struct {
	owner  string
	cancel context.CancelFunc
}

func NewLocalCancelBus() *LocalCancelBus {
	return &LocalCancelBus{streams: make(map[string]localStream)}
}

func (b *LocalCancelBus) Register(ctx context.Context, streamID, ownerID string, cancel context.CancelFunc) (func(), error) {
	b.mu.Lock()
	b.streams[streamID] = localStream{owner: ownerID, cancel: cancel}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.streams, streamID)
		b.mu.Unlock()
	}, nil
}

func (b *LocalCancelBus) Cancel(ctx context.Context, streamID, ownerID string) error {
	b.mu.Lock()
	st, ok := b.streams[streamID]
	b.mu.Unlock()
	if !ok {
		return ErrStreamNotFound
	}
	if st.owner != ownerID {
		return ErrNotStreamOwner
	}
	st.cancel()
	return nil
}
