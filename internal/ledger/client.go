package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultHistory is how many placements the Redis journal keeps.
const DefaultHistory = 1000

// Client provides instance-scoped Redis operations for tokens and placements.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
	history      int64
}

// NewClient creates a ledger client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		history:      DefaultHistory,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveToken stores a worker's token, replacing any previous one.
func (c *Client) SaveToken(ctx context.Context, worker string, t Token) error {
	key := TokenKey(c.instanceName, worker)
	if err := c.rdb.HSet(ctx, key, TokenToHash(t)).Err(); err != nil {
		return fmt.Errorf("failed to write token to Redis: %w", err)
	}
	return nil
}

// LoadToken returns the stored token for worker. found is false when none exists.
func (c *Client) LoadToken(ctx context.Context, worker string) (t Token, found bool, err error) {
	key := TokenKey(c.instanceName, worker)

	hash, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to read token from Redis: %w", err)
	}
	if len(hash) == 0 {
		return Token{}, false, nil
	}

	t, err = HashToToken(hash)
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to deserialize token: %w", err)
	}
	return t, true, nil
}

// RecordPlacement appends a placement to the journal and publishes it.
// The journal is trimmed to the most recent DefaultHistory entries.
func (c *Client) RecordPlacement(ctx context.Context, p *Placement) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid placement: %w", err)
	}

	data, err := EncodePlacement(p)
	if err != nil {
		return err
	}

	key := PlacementsKey(c.instanceName)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, c.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write placement to Redis: %w", err)
	}

	if err := c.rdb.Publish(ctx, PlacementEventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish placement event: %w", err)
	}

	return nil
}

// RecentPlacements returns up to n journal entries, newest first.
func (c *Client) RecentPlacements(ctx context.Context, n int) ([]*Placement, error) {
	if n <= 0 {
		return []*Placement{}, nil
	}

	raw, err := c.rdb.LRange(ctx, PlacementsKey(c.instanceName), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read placements from Redis: %w", err)
	}

	out := make([]*Placement, 0, len(raw))
	for _, entry := range raw {
		p, err := DecodePlacement([]byte(entry))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Subscription delivers placement events until closed.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Placement
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of placement events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Placement {
	return s.events
}

// Errors returns decode failures. The subscription continues after errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribePlacements subscribes to placement events for this instance.
// Delivery is at-most-once: slow subscribers may miss events.
func (c *Client) SubscribePlacements(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, PlacementEventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to placement events: %w", err)
	}

	eventsChan := make(chan *Placement, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				p, err := DecodePlacement([]byte(msg.Payload))
				if err != nil {
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- p:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound reports whether err is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
