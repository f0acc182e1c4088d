package utils

import (
	"context"
	"sync"
)

// Subscription is a bounded channel fed by a Dispatcher.
type Subscription[T interface{}] struct {
	channel    chan T
	blocking   bool
	dispatcher *Dispatcher[T]
}

// Dispatcher fans a value out to all subscriptions. Blocking subscriptions apply
// backpressure to the producer once their buffer is full, others drop.
type Dispatcher[T interface{}] struct {
	mutex         sync.Mutex
	subscriptions []*Subscription[T]
}

func (d *Dispatcher[T]) Subscribe(capacity int, blocking bool) *Subscription[T] {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	subscription := &Subscription[T]{
		channel:    make(chan T, capacity),
		blocking:   blocking,
		dispatcher: d,
	}
	d.subscriptions = append(d.subscriptions, subscription)

	return subscription
}

func (s *Subscription[T]) Unsubscribe() {
	if s.dispatcher == nil {
		return
	}

	s.dispatcher.Unsubscribe(s)
}

func (s *Subscription[T]) Channel() <-chan T {
	return s.channel
}

func (d *Dispatcher[T]) Unsubscribe(subscription *Subscription[T]) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if subscription.dispatcher != d {
		return
	}

	count := len(d.subscriptions)
	for i, s := range d.subscriptions {
		if s == subscription {
			if i < count-1 {
				d.subscriptions[i] = d.subscriptions[count-1]
			}

			d.subscriptions = d.subscriptions[:count-1]
			subscription.dispatcher = nil

			return
		}
	}
}

func (d *Dispatcher[T]) SubscriberCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.subscriptions)
}

// Fire delivers data to every subscription. It returns ctx.Err() if a blocking
// subscription could not accept the value before ctx was cancelled.
func (d *Dispatcher[T]) Fire(ctx context.Context, data T) error {
	d.mutex.Lock()
	subscriptions := make([]*Subscription[T], len(d.subscriptions))
	copy(subscriptions, d.subscriptions)
	d.mutex.Unlock()

	for _, s := range subscriptions {
		if s.blocking {
			select {
			case s.channel <- data:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			select {
			case s.channel <- data:
			default:
			}
		}
	}

	return nil
}
