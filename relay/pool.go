// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/opencollective/requests-sub001/model"
)

type (
	// Pool multiplexes queries, subscriptions and publishes over a set
	// of relay endpoints. Connections are cached per url and shared by
	// all callers; each call's results stay scoped to its own filter.
	Pool struct {
		connectTimeout time.Duration
		relays         *xsync.MapOf[string, *nostr.Relay]
	}

	// PublishResult is the outcome of publishing to one endpoint.
	PublishResult struct {
		URL string
		Err error
	}
)

var (
	ErrNoRelays        = errors.New("no reachable relays")
	ErrPublishRejected = errors.New("no relay accepted the event")
)

const defaultConnectTimeout = 10 * time.Second

func New(connectTimeout time.Duration) *Pool {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	return &Pool{
		connectTimeout: connectTimeout,
		relays:         xsync.NewMapOf[string, *nostr.Relay](),
	}
}

func (p *Pool) relay(ctx context.Context, url string) (*nostr.Relay, error) {
	if relay, ok := p.relays.Load(url); ok && relay.IsConnected() {
		return relay, nil
	}
	p.relays.Delete(url)
	connectCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	relay, err := nostr.RelayConnect(connectCtx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "can't connect to relay %v", url)
	}
	if actual, loaded := p.relays.LoadOrStore(url, relay); loaded {
		if closeErr := relay.Close(); closeErr != nil {
			log.Printf("can't close duplicate relay conn %v: %v", url, closeErr)
		}

		return actual, nil
	}

	return relay, nil
}

// QuerySync runs a one-shot query against every endpoint, waits for all
// reachable ones to report end of stored events (or the ctx to expire)
// and merges their results, deduplicated by event id. Unreachable
// endpoints contribute nothing; the query fails only if every endpoint
// is down.
func (p *Pool) QuerySync(ctx context.Context, urls []string, filter model.Filter) ([]*model.Event, error) {
	var (
		mx      sync.Mutex
		merged  []*model.Event
		seen    = make(map[string]struct{})
		reached = 0
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, url := range urls {
		eg.Go(func() error {
			relay, err := p.relay(egCtx, url)
			if err != nil {
				log.Printf("query: skipping unreachable relay %v: %v", url, err)

				return nil
			}
			events, err := relay.QuerySync(egCtx, filter)
			if err != nil {
				log.Printf("query: relay %v failed: %v", url, err)

				return nil
			}
			mx.Lock()
			defer mx.Unlock()
			reached++
			for _, ev := range events {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
				merged = append(merged, &model.Event{Event: *ev})
			}

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "query fan-out failed")
	}
	if reached == 0 && len(urls) > 0 {
		return nil, errors.Wrapf(ErrNoRelays, "query reached none of %v", urls)
	}

	return merged, nil
}

// Subscribe opens a long-lived subscription on every reachable endpoint
// and delivers events as they arrive, from any of them. The caller is
// responsible for deduplicating by event id. onEndOfStream, if not nil,
// fires once after every reachable endpoint reported end of stored
// events. The returned handle stops delivery; an event already in
// flight when it is invoked is dropped.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filter model.Filter, onEvent func(*model.Event), onEndOfStream func()) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	var (
		subs    []*nostr.Subscription
		pending sync.WaitGroup
		eoses   sync.WaitGroup
	)
	for _, url := range urls {
		relay, err := p.relay(subCtx, url)
		if err != nil {
			log.Printf("subscribe: skipping unreachable relay %v: %v", url, err)

			continue
		}
		sub, err := relay.Subscribe(subCtx, nostr.Filters{filter})
		if err != nil {
			log.Printf("subscribe: relay %v rejected subscription: %v", url, err)

			continue
		}
		subs = append(subs, sub)
		pending.Add(1)
		eoses.Add(1)
		go func(sub *nostr.Subscription) {
			defer pending.Done()
			eoseCh := sub.EndOfStoredEvents
			eosed := false
			for {
				select {
				case <-subCtx.Done():
					if !eosed {
						eoses.Done()
					}

					return
				case <-eoseCh:
					eoseCh = nil
					if !eosed {
						eosed = true
						eoses.Done()
					}
				case ev, ok := <-sub.Events:
					if !ok {
						if !eosed {
							eosed = true
							eoses.Done()
						}

						return
					}
					if ev != nil {
						onEvent(&model.Event{Event: *ev})
					}
				}
			}
		}(sub)
	}
	if len(subs) == 0 {
		cancel()

		return nil, errors.Wrapf(ErrNoRelays, "subscription reached none of %v", urls)
	}
	if onEndOfStream != nil {
		go func() {
			eoses.Wait()
			select {
			case <-subCtx.Done():
			default:
				onEndOfStream()
			}
		}()
	}

	return func() {
		cancel()
		for _, sub := range subs {
			sub.Unsub()
		}
		pending.Wait()
	}, nil
}

// Publish sends the signed event to every endpoint and reports one
// outcome per endpoint. The publish as a whole succeeds if at least one
// endpoint accepted; unanimity is not required.
func (p *Pool) Publish(ctx context.Context, urls []string, ev *model.Event) ([]PublishResult, error) {
	results := make([]PublishResult, len(urls))
	eg := errgroup.Group{}
	for ix, url := range urls {
		eg.Go(func() error {
			relay, err := p.relay(ctx, url)
			if err != nil {
				results[ix] = PublishResult{URL: url, Err: err}

				return nil
			}
			results[ix] = PublishResult{URL: url, Err: errors.Wrapf(relay.Publish(ctx, ev.Event), "failed to publish to relay %v", url)}

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return results, errors.Wrap(err, "publish fan-out failed")
	}
	var failures error
	accepted := 0
	for _, result := range results {
		if result.Err == nil {
			accepted++
		} else {
			failures = multierror.Append(failures, result.Err)
		}
	}
	if accepted == 0 {
		return results, errors.Wrapf(ErrPublishRejected, "all %v endpoints failed: %v", len(urls), failures)
	}

	return results, nil
}

// Close tears down every cached connection.
func (p *Pool) Close() {
	p.relays.Range(func(url string, relay *nostr.Relay) bool {
		if err := relay.Close(); err != nil {
			log.Printf("can't close relay %v: %v", url, err)
		}
		p.relays.Delete(url)

		return true
	})
}
