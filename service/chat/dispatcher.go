package chat

import (
	"sync"

	"PPClient/logger"
	"PPClient/tools/safe"

	"go.uber.org/zap"
)

// Dispatcher fans inbound frames out to subscribers: wildcard subscribers
// first with the whole frame, then subscribers of the frame's type with the
// decoded event. A panicking subscriber is logged and skipped.
type Dispatcher struct {
	reg *Registry
	log *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{reg: NewRegistry(), log: logger.OrNamed(log, "dispatcher")}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// Subscribe registers fn for events of type t. The returned function
// removes exactly this subscription and may be called any number of times.
func (d *Dispatcher) Subscribe(t string, fn func(Event)) (unsubscribe func()) {
	return d.subscribe(t, func(f Frame) { fn(f.Event) })
}

// SubscribeAll registers fn for every frame.
func (d *Dispatcher) SubscribeAll(fn func(Frame)) (unsubscribe func()) {
	return d.subscribe(anyType, fn)
}

// On subscribes fn to the event variant T.
func On[T Event](d *Dispatcher, fn func(T)) (unsubscribe func()) {
	var zero T
	return d.subscribe(zero.EventType(), func(f Frame) {
		if ev, ok := f.Event.(T); ok {
			fn(ev)
		}
	})
}

func (d *Dispatcher) subscribe(t string, fn func(Frame)) func() {
	id := d.reg.add(t, fn)
	var once sync.Once
	return func() {
		once.Do(func() { d.reg.remove(t, id) })
	}
}

// Dispatch delivers f synchronously on the calling goroutine.
func (d *Dispatcher) Dispatch(f Frame) {
	for _, e := range d.reg.snapshot(anyType) {
		d.call(f, e)
	}
	if f.Type == anyType {
		return
	}
	for _, e := range d.reg.snapshot(f.Type) {
		d.call(f, e)
	}
}

func (d *Dispatcher) call(f Frame, e handlerEntry) {
	if err := safe.Call(func() { e.fn(f) }); err != nil {
		d.log.Error("subscriber panic", zap.String("type", f.Type), zap.Uint64("sub", e.id), zap.Error(err))
	}
}
