// Package surface is the Go-native translation of the single page-wide
// MutationObserver from spec §4.2. There is no real DOM in this process;
// Publish accepts abstract mutation batches over Element values that stand
// in for document.body, and subscribers register the same way they would
// with the original observer. No package in this repository calls Publish;
// only this package's tests do.
package surface

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Element stands in for a DOM element: an id, a tag name, and a class list.
type Element struct {
	ID      string
	Tag     string
	Classes []string
}

func (e Element) hasClass(class string) bool {
	for _, c := range e.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Batch is one coalesced set of tree mutations, mirroring a
// MutationObserver callback's records array collapsed to the elements
// that were added or removed.
type Batch struct {
	Added   []Element
	Removed []Element
}

// BatchFunc is a general subscriber, invoked with every batch (spec
// §4.2 register()).
type BatchFunc func(Batch)

// ClassFunc is invoked once per added element carrying the subscribed
// class (spec §4.2 onClass()).
type ClassFunc func(Element)

// Handle identifies a registered subscription for Unregister. Unregister
// is idempotent: calling it twice, or with a stale/unknown handle, is a
// no-op (spec §4.2 "Unregister handles are idempotent").
type Handle int

const defaultDebounceDelay = 150 * time.Millisecond

type subscription struct {
	handle   Handle
	debounce bool
	delay    time.Duration
	fn       BatchFunc
	class    string // set only for onClass subscriptions; fn wraps ClassFunc
	timer    *time.Timer
	mu       sync.Mutex
	pending  *Batch
}

// Observer is the single page-wide mutation fan-out. One Observer exists
// for the whole process regardless of how many features subscribe.
type Observer struct {
	log *zap.Logger

	mu       sync.Mutex
	subs     map[Handle]*subscription
	nextID   Handle
}

func NewObserver(log *zap.Logger) *Observer {
	return &Observer{log: log, subs: make(map[Handle]*subscription)}
}

// RegisterOptions configures a Register subscription.
type RegisterOptions struct {
	Debounce      bool
	DebounceDelay time.Duration
}

// Register adds a general subscriber invoked on any batch of mutations.
func (o *Observer) Register(fn BatchFunc, opts RegisterOptions) Handle {
	delay := opts.DebounceDelay
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	sub := &subscription{debounce: opts.Debounce, delay: delay, fn: fn}
	return o.add(sub)
}

// OnTag adds a subscriber invoked once per added element in a batch whose
// class list contains class. Named OnTag per this repo's generalization of
// the browser's per-className callback to an arbitrary tag string.
func (o *Observer) OnTag(class string, fn ClassFunc) Handle {
	wrapped := func(b Batch) {
		for _, el := range b.Added {
			if el.hasClass(class) {
				fn(el)
			}
		}
	}
	sub := &subscription{fn: wrapped, class: class}
	return o.add(sub)
}

func (o *Observer) add(sub *subscription) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	sub.handle = o.nextID
	o.subs[sub.handle] = sub
	return sub.handle
}

// Unregister removes a subscription. Idempotent: repeated or unknown
// handles are a no-op.
func (o *Observer) Unregister(h Handle) {
	o.mu.Lock()
	sub, ok := o.subs[h]
	if ok {
		delete(o.subs, h)
	}
	o.mu.Unlock()

	if ok {
		sub.mu.Lock()
		if sub.timer != nil {
			sub.timer.Stop()
		}
		sub.mu.Unlock()
	}
}

// Publish feeds one mutation batch to every current subscriber, debounced
// subscribers coalescing batches received within their quiet interval.
// Failure isolation matches the interceptor hub: a panicking subscriber is
// recovered and logged, others still run (spec §4.2 "An erroring subscriber
// is caught and logged; other subscribers continue").
func (o *Observer) Publish(b Batch) {
	o.mu.Lock()
	subs := make([]*subscription, 0, len(o.subs))
	for _, s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.Unlock()

	for _, sub := range subs {
		if sub.debounce {
			o.publishDebounced(sub, b)
		} else {
			o.safeInvoke(sub, b)
		}
	}
}

func (o *Observer) publishDebounced(sub *subscription, b Batch) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.pending == nil {
		sub.pending = &Batch{}
	}
	sub.pending.Added = append(sub.pending.Added, b.Added...)
	sub.pending.Removed = append(sub.pending.Removed, b.Removed...)

	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.timer = time.AfterFunc(sub.delay, func() {
		sub.mu.Lock()
		coalesced := sub.pending
		sub.pending = nil
		sub.mu.Unlock()
		if coalesced != nil {
			o.safeInvoke(sub, *coalesced)
		}
	})
}

func (o *Observer) safeInvoke(sub *subscription, b Batch) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("surface: subscriber panicked", zap.Any("recover", r))
		}
	}()
	sub.fn(b)
}
