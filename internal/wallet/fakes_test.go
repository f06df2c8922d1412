package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemCache() *memCache { return &memCache{m: map[string]string{}} }

func (c *memCache) Get(k string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *memCache) Set(k, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = v
}

func (c *memCache) Delete(k string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, k)
	return nil
}

// mockPrompter mirrors Prompter with overridable funcs.
type mockPrompter struct {
	SelectFunc func(ctx context.Context, title string, options []Option) (string, error)
	SecretFunc func(ctx context.Context, title string) (string, error)
	InputFunc  func(ctx context.Context, title string) (string, error)
	NotifyFunc func(ctx context.Context, message string)
}

func (m *mockPrompter) Select(ctx context.Context, title string, options []Option) (string, error) {
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, title, options)
	}
	return options[0].Value, nil
}

func (m *mockPrompter) Secret(ctx context.Context, title string) (string, error) {
	if m.SecretFunc != nil {
		return m.SecretFunc(ctx, title)
	}
	return "", nil
}

func (m *mockPrompter) Input(ctx context.Context, title string) (string, error) {
	if m.InputFunc != nil {
		return m.InputFunc(ctx, title)
	}
	return "", ErrCancelled
}

func (m *mockPrompter) Notify(ctx context.Context, message string) {
	if m.NotifyFunc != nil {
		m.NotifyFunc(ctx, message)
	}
}

type mockProvider struct {
	id          string
	ConnectFunc func(ctx context.Context, p Prompter) (*Session, error)

	mu       sync.Mutex
	released []*Session
}

func (m *mockProvider) ID() string       { return m.id }
func (m *mockProvider) Display() Display { return Display{Name: m.id} }

func (m *mockProvider) Connect(ctx context.Context, p Prompter) (*Session, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, p)
	}
	return NewSession(m.id, common.HexToAddress("0x1"), big.NewInt(1337), nil), nil
}

func (m *mockProvider) Release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, s)
}

func (m *mockProvider) releasedSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Session(nil), m.released...)
}
