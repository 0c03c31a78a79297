package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
	"tableside/internal/ratelimit"
)

var (
	ErrBusStopped  = errors.New("notification bus is stopped")
	ErrRateLimited = errors.New("too many join attempts")
)

// Event is the wire envelope delivered to subscribers and relayed between
// instances.
type Event struct {
	Group   string          `json:"group"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
	Origin  string          `json:"origin,omitempty"`
}

type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// Relay carries events between service instances so a subscriber connected to
// one instance sees events published on another.
type Relay interface {
	Publish(ctx context.Context, data []byte) error
	Subscribe(ctx context.Context, handler func(data []byte)) error
}

// Sink receives a copy of every dispatched event, e.g. a kitchen display feed.
type Sink interface {
	Deliver(ctx context.Context, group, event string, body []byte) error
}

type Options struct {
	QueueSize    int
	ClientBuffer int
	JoinRate     rate.Limit
	JoinBurst    int
	SinkTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 64
	}
	if o.JoinRate <= 0 {
		o.JoinRate = 1
	}
	if o.JoinBurst <= 0 {
		o.JoinBurst = 5
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = 2 * time.Second
	}
	return o
}

// Bus is a best-effort, at-most-once group fan-out. Publish never blocks the
// caller: events that do not fit in the queue, and deliveries to subscribers
// whose buffer is full, are dropped and logged.
type Bus struct {
	opts       Options
	verifier   Verifier
	joins      *ratelimit.Limiter
	logger     *zap.Logger
	instanceID string

	queue chan Event

	mu     sync.RWMutex
	groups map[string]map[*Subscriber]struct{}
	subs   map[*Subscriber]struct{}

	relay Relay
	sinks []Sink

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBus(opts Options, verifier Verifier, logger *zap.Logger) *Bus {
	opts = opts.withDefaults()
	return &Bus{
		opts:       opts,
		verifier:   verifier,
		joins:      ratelimit.New(opts.JoinRate, opts.JoinBurst),
		logger:     logger.Named("bus"),
		instanceID: uuid.New().String(),
		queue:      make(chan Event, opts.QueueSize),
		groups:     make(map[string]map[*Subscriber]struct{}),
		subs:       make(map[*Subscriber]struct{}),
	}
}

// SetRelay must be called before Start.
func (b *Bus) SetRelay(r Relay) {
	b.relay = r
}

// AddSink must be called before Start.
func (b *Bus) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

func (b *Bus) Start(ctx context.Context) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("notification bus already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel

	b.wg.Add(1)
	go b.dispatch(runCtx)

	if b.relay != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.relay.Subscribe(runCtx, b.receiveRemote); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("relay subscription ended", zap.Error(err))
			}
		}()
	}

	b.logger.Info("notification bus started",
		zap.String("instanceId", b.instanceID),
		zap.Int("queueSize", b.opts.QueueSize),
		zap.Bool("relay", b.relay != nil),
		zap.Int("sinks", len(b.sinks)),
	)
	return nil
}

// Shutdown stops dispatching, closes every subscriber and waits for the
// background goroutines until ctx expires.
func (b *Bus) Shutdown(ctx context.Context) error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	b.mu.Lock()
	for sub := range b.subs {
		b.removeLocked(sub)
	}
	b.mu.Unlock()

	b.logger.Info("notification bus stopped")
	return err
}

// Publish enqueues an event for group. It returns immediately.
func (b *Bus) Publish(group, event string, payload any) {
	if b.stopped.Load() {
		b.logger.Debug("publish after shutdown dropped", zap.String("group", group), zap.String("event", event))
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("encoding event payload", zap.String("group", group), zap.String("event", event), zap.Error(err))
		return
	}

	ev := Event{
		Group:   group,
		Event:   event,
		Payload: raw,
		SentAt:  time.Now().UTC(),
		Origin:  b.instanceID,
	}

	select {
	case b.queue <- ev:
	default:
		b.logger.Warn("event queue full, dropping event", zap.String("group", group), zap.String("event", event))
	}
}

func (b *Bus) dispatch(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			data, err := json.Marshal(ev)
			if err != nil {
				b.logger.Error("encoding event", zap.Error(err))
				continue
			}
			b.deliverLocal(ev.Group, data)
			b.forward(ctx, ev, data)
		}
	}
}

func (b *Bus) forward(ctx context.Context, ev Event, data []byte) {
	if b.relay == nil && len(b.sinks) == 0 {
		return
	}

	fwdCtx, cancel := context.WithTimeout(ctx, b.opts.SinkTimeout)
	defer cancel()

	if b.relay != nil {
		if err := b.relay.Publish(fwdCtx, data); err != nil {
			b.logger.Warn("relay publish failed", zap.String("group", ev.Group), zap.String("event", ev.Event), zap.Error(err))
		}
	}
	for _, sink := range b.sinks {
		if err := sink.Deliver(fwdCtx, ev.Group, ev.Event, data); err != nil {
			b.logger.Warn("sink delivery failed", zap.String("group", ev.Group), zap.String("event", ev.Event), zap.Error(err))
		}
	}
}

func (b *Bus) receiveRemote(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		b.logger.Warn("discarding malformed relayed event", zap.Error(err))
		return
	}
	if ev.Origin == b.instanceID {
		return
	}
	b.deliverLocal(ev.Group, data)
}

func (b *Bus) deliverLocal(group string, data []byte) {
	target := group
	if group == GroupKitchen {
		target = GroupStaff
	}

	var slow []*Subscriber
	b.mu.RLock()
	for sub := range b.groups[target] {
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.logger.Warn("subscriber too slow, disconnecting", zap.String("subscriberId", sub.id), zap.String("group", group))
		b.Disconnect(sub)
	}
}

// NewSubscriber registers a connection that belongs to no group yet.
func (b *Bus) NewSubscriber(remoteAddr string) *Subscriber {
	sub := &Subscriber{
		id:         uuid.New().String(),
		remoteAddr: remoteAddr,
		send:       make(chan []byte, b.opts.ClientBuffer),
		groups:     make(map[string]struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped.Load() {
		sub.closed = true
		close(sub.send)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// JoinStaff adds sub to the staff group (and therefore the kitchen alias). The
// credential must verify and carry a staff, kitchen or admin role.
func (b *Bus) JoinStaff(sub *Subscriber, token string) error {
	id, err := b.verifier.Verify(token)
	if err != nil {
		return err
	}
	if !id.Role.IsStaff() {
		return apperrors.NewForbiddenError("staff role required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return ErrBusStopped
	}
	sub.identity = &id
	b.addLocked(sub, GroupStaff)

	b.logger.Debug("subscriber joined staff", zap.String("subscriberId", sub.id), zap.String("role", string(id.Role)))
	return nil
}

// JoinTable moves sub into table:<tableID>, leaving any table group it was in.
// Joins are rate limited per remote address. When a credential is supplied it
// must be a staff credential or a customer credential for that same table.
func (b *Bus) JoinTable(sub *Subscriber, tableID int64, token string) error {
	if tableID <= 0 {
		return apperrors.NewValidationError("invalid tableId", apperrors.ValidationDetail{
			Field:   "tableId",
			Message: "tableId must be a positive integer",
		})
	}

	if !b.joins.Allow(sub.remoteAddr) {
		b.logger.Warn("table join rate limited", zap.String("subscriberId", sub.id), zap.String("remoteAddr", sub.remoteAddr))
		return ErrRateLimited
	}

	if token != "" {
		id, err := b.verifier.Verify(token)
		if err != nil {
			return err
		}
		if !id.Role.IsStaff() && id.TableID != tableID {
			return apperrors.NewForbiddenError("credential is not valid for this table")
		}
	}

	group := TableGroup(tableID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return ErrBusStopped
	}
	if sub.table != "" && sub.table != group {
		b.dropLocked(sub, sub.table)
	}
	sub.table = group
	b.addLocked(sub, group)
	return nil
}

func (b *Bus) Leave(sub *Subscriber, group string) {
	if group == GroupKitchen {
		group = GroupStaff
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(sub, group)
	if sub.table == group {
		sub.table = ""
	}
}

// Disconnect removes sub from every group and closes its message channel. It
// is safe to call more than once.
func (b *Bus) Disconnect(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Members reports how many subscribers receive events sent to group.
func (b *Bus) Members(group string) int {
	if group == GroupKitchen {
		group = GroupStaff
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}

// Groups lists the groups sub currently belongs to.
func (b *Bus) Groups(sub *Subscriber) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(sub.groups))
	for g := range sub.groups {
		out = append(out, g)
	}
	return out
}

// Send queues a direct message to one subscriber, e.g. a join acknowledgement.
func (b *Bus) Send(sub *Subscriber, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub.closed {
		return false
	}
	select {
	case sub.send <- data:
		return true
	default:
		return false
	}
}

func (b *Bus) addLocked(sub *Subscriber, group string) {
	members, ok := b.groups[group]
	if !ok {
		members = make(map[*Subscriber]struct{})
		b.groups[group] = members
	}
	members[sub] = struct{}{}
	sub.groups[group] = struct{}{}
}

func (b *Bus) dropLocked(sub *Subscriber, group string) {
	if members, ok := b.groups[group]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
	delete(sub.groups, group)
}

func (b *Bus) removeLocked(sub *Subscriber) {
	if sub.closed {
		return
	}
	for group := range sub.groups {
		b.dropLocked(sub, group)
	}
	sub.table = ""
	sub.closed = true
	close(sub.send)
	delete(b.subs, sub)
}
