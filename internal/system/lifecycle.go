// Package system wires the engine together and owns startup and shutdown
// ordering.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/api/rest"
	"github.com/tswio/panelcore/internal/api/websocket"
	"github.com/tswio/panelcore/internal/boards"
	"github.com/tswio/panelcore/internal/config"
	"github.com/tswio/panelcore/internal/device"
	"github.com/tswio/panelcore/internal/events"
	"github.com/tswio/panelcore/internal/firmware"
	"github.com/tswio/panelcore/internal/serialport"
	"github.com/tswio/panelcore/internal/store"
)

type LifecycleManager struct {
	config   *config.Config
	logger   *zap.Logger
	hub      *events.Hub
	registry *device.Registry
	wsHub    *websocket.Hub
	rest     *rest.Server

	stateMu      sync.RWMutex
	currentState State

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	scanDone     chan struct{}
}

// NewLifecycleManager builds the whole engine around the given flashing
// tool adapter.
func NewLifecycleManager(cfg *config.Config, flasher firmware.Flasher, logger *zap.Logger) (*LifecycleManager, error) {
	loader, err := boards.NewLoader(cfg.Boards.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create board loader: %w", err)
	}

	hub := events.NewHub(logger)
	memory := store.NewMemory()

	provider := serialport.NewHostProvider(cfg.Serial.BaudRate)
	opts := device.Options{
		HandshakeTimeout: cfg.Serial.HandshakeTimeout,
		HandshakeRetries: cfg.Serial.HandshakeRetries,
		ApplyTimeout:     cfg.Serial.ApplyTimeout,
		PollInterval:     cfg.Serial.PollInterval,
	}
	registry := device.NewRegistry(provider, hub, opts, cfg.Serial.ReconnectBackoff, logger)

	fw := firmware.NewManager(registry, loader, flasher, hub, cfg.Firmware.UploadTimeout, logger)
	wsHub := websocket.NewHub(hub, logger)

	restServer := rest.NewServer(cfg, registry, memory, loader, fw, hub, wsHub,
		rest.NewSessionTracker(), logger)

	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		hub:          hub,
		registry:     registry,
		wsHub:        wsHub,
		rest:         restServer,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
		scanDone:     make(chan struct{}),
	}, nil
}

// Start brings up the event bridge, the port scan loop and the API server.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting panelcore")

	go lm.wsHub.Run()
	go lm.scanLoop()

	if err := lm.rest.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Duration("scan_interval", lm.config.Serial.ScanInterval))
	return nil
}

// scanLoop keeps the device registry reconciled with the host's port list.
func (lm *LifecycleManager) scanLoop() {
	defer close(lm.scanDone)

	ticker := time.NewTicker(lm.config.Serial.ScanInterval)
	defer ticker.Stop()

	if err := lm.registry.Scan(); err != nil {
		lm.logger.Warn("Initial port scan failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := lm.registry.Scan(); err != nil {
				lm.logger.Warn("Port scan failed", zap.Error(err))
			}
		case <-lm.shutdownChan:
			return
		}
	}
}

// Shutdown stops the API, the scan loop and every device session.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	lm.setState(StateStopping)
	lm.logger.Info("Shutting down panelcore")

	lm.shutdownOnce.Do(func() { close(lm.shutdownChan) })
	<-lm.scanDone

	if err := lm.rest.Shutdown(ctx); err != nil {
		lm.logger.Error("REST shutdown failed", zap.Error(err))
	}
	lm.wsHub.Stop()

	for _, conn := range lm.registry.List() {
		if err := lm.registry.Disconnect(conn.Port); err != nil {
			lm.logger.Warn("Failed to disconnect device",
				zap.String("port", conn.Port), zap.Error(err))
		}
	}

	lm.setState(StateStopped)
	lm.logger.Info("Shutdown complete")
	return nil
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() State {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state State) {
	lm.stateMu.Lock()
	lm.currentState = state
	lm.stateMu.Unlock()
}
