package device

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/muurk/iotctl/internal/transport"
)

type mockTransport struct {
	mock.Mock
	cfg transport.Config
}

func (m *mockTransport) Get(ctx context.Context, path string) (*transport.Response, error) {
	args := m.Called(ctx, path)
	resp, _ := args.Get(0).(*transport.Response)
	return resp, args.Error(1)
}

func (m *mockTransport) Post(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	args := m.Called(ctx, path, body)
	resp, _ := args.Get(0).(*transport.Response)
	return resp, args.Error(1)
}

// transportQueue hands out prepared mocks in creation order and records the
// configuration each one was built with
type transportQueue struct {
	mu      sync.Mutex
	pending []*mockTransport
	built   []*mockTransport
}

func newTransportQueue(t *testing.T, mocks ...*mockTransport) *transportQueue {
	t.Helper()
	q := &transportQueue{pending: mocks}
	t.Cleanup(func() {
		for _, m := range q.built {
			m.AssertExpectations(t)
		}
	})
	return q
}

func (q *transportQueue) factory(cfg transport.Config) transport.Transport {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		panic("transportQueue: no transport prepared")
	}
	m := q.pending[0]
	q.pending = q.pending[1:]
	m.cfg = cfg
	q.built = append(q.built, m)
	return m
}

func (q *transportQueue) configs() []transport.Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	cfgs := make([]transport.Config, len(q.built))
	for i, m := range q.built {
		cfgs[i] = m.cfg
	}
	return cfgs
}

func status(code int) *transport.Response {
	return &transport.Response{StatusCode: code}
}
