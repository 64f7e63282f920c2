package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/quantity"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// TestActionPrefix marks command names that belong to the control surface.
const TestActionPrefix = "test_"

// Handler implements a command against a model.
type Handler func(m *Model, args any) (any, error)

// Action is a Handler bound to its model.
type Action func(args any) (any, error)

// Hook runs around quantity stepping with the tick's simulated time and
// elapsed time.
type Hook func(m *Model, simTime, dt float64)

// State is the committed snapshot of one quantity.
type State struct {
	Value     any
	Timestamp float64
}

// Model owns the simulated quantities of one device and the actions that
// manipulate them. Methods do not lock; callers serialize through Monitor.
type Model struct {
	Name string

	// Paused suspends quantity stepping; updates only refresh the snapshot.
	Paused          bool
	MinUpdatePeriod float64
	TimeFunc        func() float64

	// Memory is scratch space for override handlers.
	Memory map[string]any

	quantities     map[string]quantity.Quantity
	order          []string
	state          map[string]State
	actions        map[string]Action
	testActions    map[string]Action
	properties     map[string]types.PropertyMeta
	preUpdate      []Hook
	postUpdate     []Hook
	lastUpdateTime float64
	startTime      float64

	sleep   func(time.Duration)
	monitor sync.Mutex
	logger  *zap.Logger
}

type Option func(*Model)

func WithTimeFunc(f func() float64) Option {
	return func(m *Model) {
		m.TimeFunc = f
	}
}

func WithMinUpdatePeriod(period float64) Option {
	return func(m *Model) {
		m.MinUpdatePeriod = period
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// WithSleep replaces the blocking sleep used by long-running actions.
func WithSleep(f func(time.Duration)) Option {
	return func(m *Model) {
		m.sleep = f
	}
}

// WithRegistry registers the model under its name on construction.
func WithRegistry(r *Registry) Option {
	return func(m *Model) {
		r.Register(m)
	}
}

// WallClock returns seconds since the Unix epoch.
func WallClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func New(name string, opts ...Option) *Model {
	m := &Model{
		Name:        name,
		TimeFunc:    WallClock,
		Memory:      make(map[string]any),
		quantities:  make(map[string]quantity.Quantity),
		state:       make(map[string]State),
		actions:     make(map[string]Action),
		testActions: make(map[string]Action),
		properties:  make(map[string]types.PropertyMeta),
		sleep:       time.Sleep,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.startTime = m.TimeFunc()
	m.lastUpdateTime = m.startTime
	return m
}

// Monitor is the lock devices hold while touching the model.
func (m *Model) Monitor() sync.Locker {
	return &m.monitor
}

func (m *Model) Logger() *zap.Logger {
	return m.logger
}

// Now samples the model's time function.
func (m *Model) Now() float64 {
	return m.TimeFunc()
}

func (m *Model) StartTime() float64 {
	return m.startTime
}

func (m *Model) LastUpdateTime() float64 {
	return m.lastUpdateTime
}

// Sleep blocks for d using the model's sleep function.
func (m *Model) Sleep(d time.Duration) {
	m.sleep(d)
}

// SetQuantity adds or replaces a quantity. New names are appended to the
// iteration order; replacements keep their position.
func (m *Model) SetQuantity(name string, q quantity.Quantity) {
	if _, exists := m.quantities[name]; !exists {
		m.order = append(m.order, name)
	}
	m.quantities[name] = q
	m.state[name] = State{Value: q.LastVal(), Timestamp: q.LastUpdateTime()}
}

func (m *Model) Quantity(name string) (quantity.Quantity, bool) {
	q, ok := m.quantities[name]
	return q, ok
}

// Lookup is Quantity with an ErrQuantityMissing error.
func (m *Model) Lookup(name string) (quantity.Quantity, error) {
	q, ok := m.quantities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on model %q", types.ErrQuantityMissing, name, m.Name)
	}
	return q, nil
}

// QuantityNames returns names in insertion order.
func (m *Model) QuantityNames() []string {
	return append([]string(nil), m.order...)
}

// QuantityState returns the committed snapshot of a quantity.
func (m *Model) QuantityState(name string) (State, bool) {
	s, ok := m.state[name]
	return s, ok
}

// Snapshot copies the whole committed state.
func (m *Model) Snapshot() map[string]State {
	out := make(map[string]State, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}

func (m *Model) AppendPreUpdate(h Hook) {
	m.preUpdate = append(m.preUpdate, h)
}

func (m *Model) AppendPostUpdate(h Hook) {
	m.postUpdate = append(m.postUpdate, h)
}

// Update advances every quantity to the current simulated time unless the
// model is paused or the minimum update period has not elapsed.
func (m *Model) Update() {
	simTime := m.TimeFunc()
	dt := simTime - m.lastUpdateTime

	if dt < m.MinUpdatePeriod || m.Paused {
		m.refreshState()
		return
	}

	for _, hook := range m.preUpdate {
		hook(m, simTime, dt)
	}

	m.lastUpdateTime = simTime
	for _, name := range m.order {
		q := m.quantities[name]
		v, err := stepQuantity(q, simTime)
		if err != nil {
			m.logger.Warn("Quantity update failed",
				zap.String("model", m.Name),
				zap.String("quantity", name),
				zap.Error(err))
			m.state[name] = State{Value: q.LastVal(), Timestamp: q.LastUpdateTime()}
			continue
		}
		m.state[name] = State{Value: v, Timestamp: simTime}
	}

	for _, hook := range m.postUpdate {
		hook(m, simTime, dt)
	}
}

func stepQuantity(q quantity.Quantity, simTime float64) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", types.ErrUpdate, r)
		}
	}()
	return q.NextVal(simTime)
}

func (m *Model) refreshState() {
	for _, name := range m.order {
		q := m.quantities[name]
		m.state[name] = State{Value: q.LastVal(), Timestamp: q.LastUpdateTime()}
	}
}

// SetSimAction binds handler under name. Names carrying the test_ prefix
// land in the test-action table without the prefix.
func (m *Model) SetSimAction(name string, handler Handler) {
	if strings.HasPrefix(name, TestActionPrefix) {
		m.SetTestSimAction(strings.TrimPrefix(name, TestActionPrefix), handler)
		return
	}
	m.actions[name] = m.bind(handler)
}

func (m *Model) SetTestSimAction(name string, handler Handler) {
	m.testActions[name] = m.bind(handler)
}

func (m *Model) bind(handler Handler) Action {
	return func(args any) (any, error) {
		return handler(m, args)
	}
}

func (m *Model) Action(name string) (Action, bool) {
	a, ok := m.actions[name]
	return a, ok
}

func (m *Model) TestAction(name string) (Action, bool) {
	a, ok := m.testActions[name]
	return a, ok
}

func (m *Model) ActionNames() []string {
	return sortedKeys(m.actions)
}

func (m *Model) TestActionNames() []string {
	return sortedKeys(m.testActions)
}

func (m *Model) SetProperty(p types.PropertyMeta) {
	m.properties[p.Name] = p
}

// Properties returns the property table sorted by name.
func (m *Model) Properties() []types.PropertyMeta {
	out := make([]types.PropertyMeta, 0, len(m.properties))
	for _, name := range sortedKeys(m.properties) {
		out = append(out, m.properties[name])
	}
	return out
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
