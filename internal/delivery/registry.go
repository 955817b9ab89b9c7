// Package delivery sends fired proactive actions to their delivery channel.
package delivery

import (
	"context"
	"sync"

	"github.com/xbora/mio/internal/types"
)

// Dispatcher delivers one fired action to one user.
type Dispatcher interface {
	Dispatch(ctx context.Context, action *types.ProactiveAction, user *types.User) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, action *types.ProactiveAction, user *types.User) error

func (f DispatcherFunc) Dispatch(ctx context.Context, action *types.ProactiveAction, user *types.User) error {
	return f(ctx, action, user)
}

// Registry routes actions to the dispatcher registered for their delivery
// channel.
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.Channel]Dispatcher
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.Channel]Dispatcher),
	}
}

// Register adds or replaces the dispatcher for channel.
func (r *Registry) Register(channel types.Channel, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[channel] = d
}

// Channels returns the channels that have a dispatcher.
func (r *Registry) Channels() []types.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Channel, 0, len(r.handlers))
	for _, c := range types.Channels {
		if _, ok := r.handlers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Deliver dispatches action on its own channel. An unknown or unregistered
// channel is an UnsupportedChannelError.
func (r *Registry) Deliver(ctx context.Context, action *types.ProactiveAction, user *types.User) error {
	r.mu.RLock()
	d, ok := r.handlers[action.DeliveryChannel]
	r.mu.RUnlock()
	if !ok {
		return &UnsupportedChannelError{Channel: action.DeliveryChannel}
	}
	return d.Dispatch(ctx, action, user)
}
