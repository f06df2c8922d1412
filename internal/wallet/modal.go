package wallet

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/comigor/waveportal-go/internal/logger"
)

const cachedProviderKey = "WEB3_CONNECT_CACHED_PROVIDER"

// Cache persists the cached provider id.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string) error
}

// Modal selects a provider, connects through it and caches its id.
type Modal struct {
	providers []Provider
	cache     Cache
	prompter  Prompter

	mu      sync.Mutex
	current *Session
	// gen counts disconnects; a connect started in an older generation
	// must not cache or keep its session.
	gen uint64
}

// NewModal creates a modal over providers, in display order.
func NewModal(cache Cache, prompter Prompter, providers ...Provider) *Modal {
	return &Modal{providers: providers, cache: cache, prompter: prompter}
}

// CachedProvider returns the id of the last successfully connected provider.
func (m *Modal) CachedProvider() string {
	id, _ := m.cache.Get(cachedProviderKey)
	return id
}

// HasCachedSession reports whether a cached provider exists and is still registered.
func (m *Modal) HasCachedSession() bool {
	id := m.CachedProvider()
	return id != "" && m.provider(id) != nil
}

// ClearCachedProvider forgets the cached provider.
func (m *Modal) ClearCachedProvider() error {
	return m.cache.Delete(cachedProviderKey)
}

// Connect always asks which provider to use, connects and caches the choice.
// A failure leaves the cache as it was.
func (m *Modal) Connect(ctx context.Context) (*Session, error) {
	gen := m.generation()
	p, err := m.choose(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return m.connect(ctx, p, gen)
}

// Reconnect connects through the cached provider without asking for one.
func (m *Modal) Reconnect(ctx context.Context) (*Session, error) {
	gen := m.generation()
	id := m.CachedProvider()
	if id == "" {
		return nil, &ConnectionError{Err: ErrNoCachedProvider}
	}
	p := m.provider(id)
	if p == nil {
		return nil, &ConnectionError{Provider: id, Err: ErrNoProvider}
	}
	return m.connect(ctx, p, gen)
}

// Disconnect clears the cached provider and releases the current session.
// Connects still in flight fail with ErrDisconnected and release their
// session instead of keeping it.
func (m *Modal) Disconnect() {
	m.mu.Lock()
	m.gen++
	sess := m.current
	m.current = nil
	err := m.ClearCachedProvider()
	m.mu.Unlock()

	if err != nil {
		logger.L.Error("clearing cached wallet provider failed", "error", err)
	}
	if sess == nil {
		return
	}
	m.release(sess)
	logger.L.Info("wallet disconnected", "provider", sess.ProviderID, "address", sess.Address.Hex())
}

func (m *Modal) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *Modal) connect(ctx context.Context, p Provider, gen uint64) (*Session, error) {
	sess, err := p.Connect(ctx, m.prompter)
	if err != nil {
		return nil, &ConnectionError{Provider: p.ID(), Err: err}
	}

	m.mu.Lock()
	stale := m.gen != gen || ctx.Err() != nil
	if !stale {
		m.cache.Set(cachedProviderKey, p.ID())
		m.current = sess
	}
	m.mu.Unlock()

	if stale {
		m.release(sess)
		logger.L.Info("dropping wallet session connected after disconnect", "provider", p.ID())
		return nil, &ConnectionError{Provider: p.ID(), Err: ErrDisconnected}
	}
	logger.L.Info("wallet connected", "provider", p.ID(), "address", sess.Address.Hex())
	return sess, nil
}

func (m *Modal) release(sess *Session) {
	if r, ok := m.provider(sess.ProviderID).(releaser); ok {
		r.Release(sess)
	}
}

func (m *Modal) choose(ctx context.Context) (Provider, error) {
	switch len(m.providers) {
	case 0:
		return nil, ErrNoProvider
	case 1:
		return m.providers[0], nil
	}

	options := lo.Map(m.providers, func(p Provider, _ int) Option {
		d := p.Display()
		label := d.Name
		if d.Description != "" {
			label += " - " + d.Description
		}
		return Option{Label: label, Value: p.ID()}
	})
	id, err := m.prompter.Select(ctx, "Connect a wallet", options)
	if err != nil {
		return nil, err
	}
	p := m.provider(id)
	if p == nil {
		return nil, ErrNoProvider
	}
	return p, nil
}

func (m *Modal) provider(id string) Provider {
	p, ok := lo.Find(m.providers, func(p Provider) bool { return p.ID() == id })
	if !ok {
		return nil
	}
	return p
}
