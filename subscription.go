package dashboard

import (
	"context"
	"github.com/google/uuid"
	"sync"
)

// Subscription scopes a single stream connection and the requests issued
// for it. Everything started with the subscription context is released
// once the subscription is closed.
type Subscription struct {
	ID uuid.UUID

	ctx       context.Context
	cancelCtx context.CancelFunc
	closeOnce sync.Once
}

func OpenSubscription(parent context.Context) *Subscription {
	ctx, cancelCtx := context.WithCancel(parent)

	return &Subscription{
		ID:        uuid.New(),
		ctx:       ctx,
		cancelCtx: cancelCtx,
	}
}

func (s *Subscription) Context() context.Context {
	return s.ctx
}

// Close releases the subscription. It is safe to call it more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.cancelCtx)
}

func (s *Subscription) Active() bool {
	return s.ctx.Err() == nil
}

// Is tells whether the other subscription is this very subscription.
func (s *Subscription) Is(other *Subscription) bool {
	return s != nil && other != nil && s.ID == other.ID
}

func (s *Subscription) String() string {
	return s.ID.String()
}
