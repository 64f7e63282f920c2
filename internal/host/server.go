package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server hosts device classes and their live instances.
type Server struct {
	classes map[string]Class
	devices map[string]*Instance
	db      PropertyDB
	poller  *Poller
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewServer(db PropertyDB, logger *zap.Logger) *Server {
	if db == nil {
		db = NewMemoryPropertyDB()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		classes: make(map[string]Class),
		devices: make(map[string]*Instance),
		db:      db,
		logger:  logger,
	}
}

func (s *Server) PropertyDB() PropertyDB {
	return s.db
}

// RegisterClass makes a class available to CreateDevice. Registering a
// name twice replaces the definition for devices created afterwards.
func (s *Server) RegisterClass(c Class) error {
	if c.Name == "" {
		return fmt.Errorf("class has no name")
	}
	if c.New == nil {
		return fmt.Errorf("class %q has no constructor", c.Name)
	}

	s.mu.Lock()
	s.classes[c.Name] = c
	s.mu.Unlock()

	s.logger.Info("Class registered",
		zap.String("class", c.Name),
		zap.Int("attributes", len(c.Attributes)),
		zap.Int("commands", len(c.Commands)))
	return nil
}

// CreateDevice instantiates a registered class under deviceName and runs
// its Init hook.
func (s *Server) CreateDevice(ctx context.Context, className, deviceName string) (*Instance, error) {
	s.mu.RLock()
	class, ok := s.classes[className]
	_, taken := s.devices[deviceName]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: class %q", types.ErrNotFound, className)
	}
	if taken {
		return nil, fmt.Errorf("device %q already exists", deviceName)
	}

	inst := newInstance(class, deviceName, s.db, s.logger)
	if err := inst.declare(class); err != nil {
		return nil, fmt.Errorf("failed to declare %s: %w", deviceName, err)
	}
	if err := inst.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", deviceName, err)
	}

	s.mu.Lock()
	if _, taken := s.devices[deviceName]; taken {
		s.mu.Unlock()
		return nil, fmt.Errorf("device %q already exists", deviceName)
	}
	s.devices[deviceName] = inst
	s.mu.Unlock()

	s.logger.Info("Device created",
		zap.String("device", deviceName),
		zap.String("class", className),
		zap.String("id", inst.ID.String()),
		zap.Int("attributes", len(inst.AttributeNames())),
		zap.Int("rejected", len(inst.Rejected())))

	return inst, nil
}

// Device returns a device by name.
func (s *Server) Device(name string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.devices[name]
	return inst, exists
}

// DeviceByID returns a device by instance id.
func (s *Server) DeviceByID(id uuid.UUID) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.devices {
		if inst.ID == id {
			return inst, true
		}
	}
	return nil, false
}

// Devices returns all devices sorted by name.
func (s *Server) Devices() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Instance, 0, len(s.devices))
	for _, inst := range s.devices {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemoveDevice deletes a device and its stored properties.
func (s *Server) RemoveDevice(ctx context.Context, name string) error {
	s.mu.Lock()
	_, exists := s.devices[name]
	delete(s.devices, name)
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: device %q", types.ErrNotFound, name)
	}
	if err := s.db.DeleteDevice(ctx, name); err != nil {
		return fmt.Errorf("failed to delete properties of %s: %w", name, err)
	}
	s.logger.Info("Device removed", zap.String("device", name))
	return nil
}

// StartPolling ticks every device's always-executed hook each interval and
// publishes changed readings.
func (s *Server) StartPolling(interval time.Duration, pub Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poller != nil && s.poller.IsRunning() {
		return fmt.Errorf("poller already running")
	}
	s.poller = NewPoller(s, interval, pub, s.logger)
	return s.poller.Start()
}

// Stop halts the poller.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	poller := s.poller
	s.mu.RUnlock()

	if poller == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop poller: %w", ctx.Err())
	}
}
