// Package nostr publishes stream-lifecycle events (NIP-53 kind:30311,
// parameterized replaceable) and low-balance warnings (NIP-04 encrypted
// DMs) to a configured relay set. This is the one dependency in the
// module introduced purely from ecosystem knowledge rather than grounded
// in the retrieval pack: no example repo or other_examples/ file touches
// the Nostr protocol.
package nostr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
)

// Publisher signs and publishes events to a fixed relay set. It holds no
// queue: each call publishes on the caller's goroutine, so the order in
// which concurrent calls for the same stream reach the relays is not
// defined.
type Publisher struct {
	privateKey string
	publicKey  string
	relayURLs  []string
	retry      RetryConfig
	logger     *slog.Logger

	mu     sync.Mutex
	relays map[string]*nostr.Relay
}

// NewPublisher creates a Publisher for the given nsec-derived hex private
// key and relay set.
func NewPublisher(privateKeyHex string, relayURLs []string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	pub, _ := nostr.GetPublicKey(privateKeyHex)
	return &Publisher{
		privateKey: privateKeyHex,
		publicKey:  pub,
		relayURLs:  relayURLs,
		retry:      DefaultRetryConfig(),
		logger:     logger,
		relays:     make(map[string]*nostr.Relay),
	}
}

// PublicKey returns the signing public key in hex.
func (p *Publisher) PublicKey() string {
	return p.publicKey
}

// PublishLiveEvent signs and publishes a kind:30311 event with retry.
// Database operations are never gated on the result (spec.md §4.5).
func (p *Publisher) PublishLiveEvent(ctx context.Context, ev LiveEvent) error {
	event := ev.Build(p.publicKey)
	if err := event.Sign(p.privateKey); err != nil {
		return fmt.Errorf("nostr: signing event: %w", err)
	}
	return p.publishWithRetry(ctx, event)
}

// PublishEncryptedDM sends a NIP-04 encrypted direct message to
// recipientPubkey, with retry.
func (p *Publisher) PublishEncryptedDM(ctx context.Context, recipientPubkey, message string) error {
	shared, err := nip04.ComputeSharedSecret(recipientPubkey, p.privateKey)
	if err != nil {
		return fmt.Errorf("nostr: computing shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(message, shared)
	if err != nil {
		return fmt.Errorf("nostr: encrypting dm: %w", err)
	}

	event := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", recipientPubkey}},
		Content:   ciphertext,
	}
	if err := event.Sign(p.privateKey); err != nil {
		return fmt.Errorf("nostr: signing dm: %w", err)
	}
	return p.publishWithRetry(ctx, event)
}

// publishWithRetry publishes to every configured relay, retrying the whole
// fan-out on exponential backoff per spec.md §4.5.
func (p *Publisher) publishWithRetry(ctx context.Context, event nostr.Event) error {
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retry.delayFor(attempt - 1)):
			}
		}

		lastErr = p.publishOnce(ctx, event)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("nostr publish attempt failed", slog.Int("attempt", attempt+1), slog.String("error", lastErr.Error()))
	}
	return fmt.Errorf("nostr: publish failed after %d attempts: %w", p.retry.MaxAttempts, lastErr)
}

func (p *Publisher) publishOnce(ctx context.Context, event nostr.Event) error {
	var firstErr error
	published := 0
	for _, url := range p.relayURLs {
		relay, err := p.relayFor(ctx, url)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := relay.Publish(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		published++
	}
	if published == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

func (p *Publisher) relayFor(ctx context.Context, url string) (*nostr.Relay, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if relay, ok := p.relays[url]; ok && relay.IsConnected() {
		return relay, nil
	}

	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("nostr: connecting to relay %s: %w", url, err)
	}
	p.relays[url] = relay
	return relay, nil
}

// Close disconnects all held relay connections.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, relay := range p.relays {
		relay.Close()
	}
	p.relays = make(map[string]*nostr.Relay)
}
