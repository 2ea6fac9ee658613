package broker

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/tracelog"
)

// Session errors.
var (
	ErrNotConnected   = errors.New("broker: not connected")
	ErrConnectTimeout = errors.New("broker: connect timeout")
)

const (
	publishTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
)

// MessageHandler receives every message of a session. Handlers run
// synchronously on the client's receive path; keep them fast.
type MessageHandler func(topic string, payload []byte)

type handlerEntry struct {
	id int
	fn MessageHandler
}

// session is the per-side bookkeeping shared by the vendor and local
// halves: the live client, the subscription snapshot replayed after
// reconnects, and the registered message and connect handlers.
type session struct {
	name   tracelog.Session
	tracer tracelog.Tracer
	log    zerolog.Logger

	mu        sync.Mutex
	client    mqtt.Client
	subs      map[string]struct{}
	handlers  []handlerEntry
	nextID    int
	onConnect []func()

	in  atomic.Uint64
	out atomic.Uint64
}

func newSession(name tracelog.Session, tracer tracelog.Tracer, log zerolog.Logger) *session {
	return &session{
		name:   name,
		tracer: tracer,
		log:    log,
		subs:   make(map[string]struct{}),
	}
}

// setClient swaps the live client in. The old client, if any, is the
// caller's to tear down.
func (s *session) setClient(c mqtt.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *session) currentClient() mqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *session) isConnected() bool {
	c := s.currentClient()
	return c != nil && c.IsConnected()
}

// addHandler registers a message handler and returns its remover.
func (s *session) addHandler(fn MessageHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers = append(s.handlers, handlerEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

func (s *session) addConnectHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// dispatch fans a received message out to all handlers, in
// registration order.
func (s *session) dispatch(topic string, payload []byte) {
	s.in.Add(1)
	s.tracer.Log(tracelog.Frame(s.name, tracelog.DirectionIn, topic, payload))

	s.mu.Lock()
	handlers := make([]handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h.fn(topic, payload)
	}
}

// notifyConnected runs the connect callbacks.
func (s *session) notifyConnected() {
	s.mu.Lock()
	callbacks := make([]func(), len(s.onConnect))
	copy(callbacks, s.onConnect)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// hasSubscriptions reports whether the session has ever subscribed.
func (s *session) hasSubscriptions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// subscribe records the topic and subscribes on the live client.
func (s *session) subscribe(topic string) error {
	s.mu.Lock()
	s.subs[topic] = struct{}{}
	c := s.client
	s.mu.Unlock()

	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	return s.subscribeOn(c, topic)
}

// replaySubscriptions re-subscribes the snapshotted set topic by topic
// on the given client. The first failure aborts the replay.
func (s *session) replaySubscriptions(c mqtt.Client) error {
	s.mu.Lock()
	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	s.mu.Unlock()
	sort.Strings(topics)

	for _, topic := range topics {
		if err := s.subscribeOn(c, topic); err != nil {
			return err
		}
		s.log.Debug().Str("topic", topic).Msg("subscription restored")
	}
	return nil
}

func (s *session) subscribeOn(c mqtt.Client, topic string) error {
	tok := c.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		s.dispatch(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(subscribeTimeout) {
		return ErrConnectTimeout
	}
	return tok.Error()
}

// publish sends on the live client.
func (s *session) publish(topic string, payload []byte, retain bool) error {
	c := s.currentClient()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	s.out.Add(1)
	s.tracer.Log(tracelog.Frame(s.name, tracelog.DirectionOut, topic, payload))

	tok := c.Publish(topic, 0, retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return ErrConnectTimeout
	}
	return tok.Error()
}

// teardown force-ends the current client, if any.
func (s *session) teardown() {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c != nil {
		c.Disconnect(250)
	}
}
