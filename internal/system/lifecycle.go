package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	grpcapi "github.com/KevinKickass/OpenSimCore/internal/api/grpc"
	"github.com/KevinKickass/OpenSimCore/internal/api/rest"
	"github.com/KevinKickass/OpenSimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/interfaces"
	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/populate"
	"github.com/KevinKickass/OpenSimCore/internal/simdevice"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Simulation is one loaded device: its model and both live instances.
type Simulation struct {
	Model    *model.Model
	Assembly *simdevice.Assembly
	Device   *host.Instance
	Control  *host.Instance
}

type LifecycleManager struct {
	config   *config.Config
	logger   *zap.Logger
	host     *host.Server
	models   *model.Registry
	hub      *websocket.Hub
	streamer *grpcapi.EventStreamer
	jwt      *auth.JWTHandler

	simulation *Simulation

	restServer *rest.Server
	grpcServer *grpc.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownOnce sync.Once
}

// NewLifecycleManager wires the host to db. A nil db keeps properties in
// memory.
func NewLifecycleManager(cfg *config.Config, db host.PropertyDB, logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	var jwt *auth.JWTHandler
	if cfg.Auth.Enabled {
		if !cfg.Auth.IsProductionReady() {
			logger.Warn("JWT secret is the development default or too short")
		}
		jwt = auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.TokenTTL)
	}

	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		host:         host.NewServer(db, logger),
		models:       model.NewRegistry(),
		hub:          websocket.NewHub(logger, jwt),
		streamer:     grpcapi.NewEventStreamer(),
		jwt:          jwt,
		currentState: StateInitializing,
	}
}

// LoadSimulation parses the configured description files, populates a
// model and installs the main and control devices on the host.
func (lm *LifecycleManager) LoadSimulation(ctx context.Context) (*Simulation, error) {
	simCfg := lm.config.Simulation
	if len(simCfg.DescriptionFiles) == 0 {
		return nil, fmt.Errorf("no description files configured")
	}

	loader, err := parsers.NewLoader(simCfg.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser loader: %w", err)
	}
	files, err := loader.LoadAll(simCfg.DescriptionFiles)
	if err != nil {
		return nil, err
	}

	m := model.New(simCfg.DeviceName,
		model.WithMinUpdatePeriod(simCfg.MinUpdatePeriod),
		model.WithLogger(lm.logger),
		model.WithRegistry(lm.models))

	res, err := populate.Build(m, files, override.NewLoader(lm.logger))
	if err != nil {
		lm.models.Remove(m.Name)
		return nil, err
	}

	asm, err := simdevice.NewAssembler(lm.logger).Assemble(m, res.Merged)
	if err != nil {
		lm.models.Remove(m.Name)
		return nil, err
	}

	var controlName string
	if simCfg.ControlDeviceSuffix != "" {
		controlName = simCfg.DeviceName + simCfg.ControlDeviceSuffix
	}
	main, control, err := simdevice.Install(ctx, lm.host, asm, simCfg.DeviceName, controlName)
	if err != nil {
		lm.models.Remove(m.Name)
		return nil, err
	}

	for _, na := range asm.Device().AttributesNotAdded() {
		lm.logger.Warn("Attribute not added",
			zap.String("device", main.Name),
			zap.String("attribute", na.Name),
			zap.Error(na.Err))
	}

	lm.simulation = &Simulation{Model: m, Assembly: asm, Device: main, Control: control}
	lm.logger.Info("Simulation loaded",
		zap.String("device", main.Name),
		zap.String("control_device", control.Name),
		zap.String("class", asm.Main.Name),
		zap.Strings("files", simCfg.DescriptionFiles))
	return lm.simulation, nil
}

// Start loads the simulation and brings up the poller and API servers.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenSimCore")
	lm.setState(StateInitializing)

	if _, err := lm.LoadSimulation(ctx); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to load simulation: %w", err)
	}

	go lm.hub.Run()

	publish := host.PublisherFunc(func(ev host.Event) {
		lm.hub.Publish(ev)
		lm.streamer.Publish(ev)
	})
	if err := lm.host.StartPolling(lm.config.Simulation.PollInterval, publish); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start poller: %w", err)
	}

	if lm.config.Server.EnableGRPC {
		if err := lm.startGRPCServer(); err != nil {
			lm.setState(StateError)
			return fmt.Errorf("failed to start gRPC: %w", err)
		}
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("grpc_enabled", lm.config.Server.EnableGRPC),
		zap.Bool("auth_enabled", lm.jwt != nil))
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpcapi.NewServer(grpcapi.NewService(lm.host, lm.streamer, lm.logger), lm.jwt)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", grpcapi.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub, lm.jwt)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Stop the poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.host.Stop(ctx); err != nil {
			errChan <- fmt.Errorf("host stop failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	lm.hub.Stop()

	select {
	case e := <-errChan:
		if err == nil {
			err = e
		}
	default:
	}
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	devices := lm.host.Devices()
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}

	var paused []string
	for _, name := range lm.models.Names() {
		m, ok := lm.models.Get(name)
		if !ok {
			continue
		}
		mu := m.Monitor()
		mu.Lock()
		if m.Paused {
			paused = append(paused, name)
		}
		mu.Unlock()
	}

	return interfaces.SystemStatus{
		State:       lm.State().String(),
		DeviceCount: len(devices),
		Devices:     names,
		Models:      lm.models.Names(),
		Paused:      paused,
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// Simulation returns the loaded simulation, or nil before Start.
func (lm *LifecycleManager) Simulation() *Simulation {
	return lm.simulation
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Host() *host.Server {
	return lm.host
}

func (lm *LifecycleManager) Models() *model.Registry {
	return lm.models
}

// JWT returns the token handler, or nil when auth is disabled.
func (lm *LifecycleManager) JWT() *auth.JWTHandler {
	return lm.jwt
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
