package paymenttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
)

// FakeGateway hands out sequential order ids: order_1, order_2, ...
type FakeGateway struct {
	mu       sync.Mutex
	err      error
	delay    time.Duration
	next     int
	requests []payment.OrderRequest
}

var _ payment.Gateway = (*FakeGateway)(nil)

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// FailWith makes subsequent calls return err (nil restores success).
func (g *FakeGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Delay makes each call wait d or until the context is done.
func (g *FakeGateway) Delay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

func (g *FakeGateway) Requests() []payment.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.OrderRequest(nil), g.requests...)
}

func (g *FakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	g.mu.Lock()
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	g.next++
	return &payment.RemoteOrder{
		ID:       fmt.Sprintf("order_%d", g.next),
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}
