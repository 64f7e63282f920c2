package host

import (
	"reflect"
	"sync"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
)

// Poller is the host timer that drives simulated time. Each tick reads
// every device, which runs its always-executed hook, and publishes the
// readings that changed since the previous tick.
type Poller struct {
	server    *Server
	interval  time.Duration
	publisher Publisher
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex

	last map[string]map[string]any
}

func NewPoller(server *Server, interval time.Duration, pub Publisher, logger *zap.Logger) *Poller {
	return &Poller{
		server:    server,
		interval:  interval,
		publisher: pub,
		logger:    logger,
		stopChan:  make(chan struct{}),
		last:      make(map[string]map[string]any),
	}
}

// Start starts the tick loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started", zap.Duration("interval", p.interval))

	return nil
}

// Stop stops the tick loop and waits for the current tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick polls every device once.
func (p *Poller) Tick() {
	for _, inst := range p.server.Devices() {
		p.pollDevice(inst)
	}
}

func (p *Poller) pollDevice(inst *Instance) {
	readings := inst.ReadAll()

	prev, ok := p.last[inst.Name]
	if !ok {
		prev = make(map[string]any)
		p.last[inst.Name] = prev
	}

	for _, name := range inst.AttributeNames() {
		r, ok := readings[name]
		if !ok {
			continue
		}
		value := types.Plain(r.Value)
		if old, seen := prev[name]; seen && reflect.DeepEqual(old, value) {
			continue
		}
		prev[name] = value

		if p.publisher != nil {
			p.publisher.Publish(Event{
				Device:    inst.Name,
				Attribute: name,
				Value:     value,
				Timestamp: r.Timestamp,
				Quality:   r.Quality,
			})
		}
	}
}

// IsRunning reports whether the tick loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
