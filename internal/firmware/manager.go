// Package firmware coordinates firmware uploads. The actual flashing
// executable is an external collaborator behind the Flasher interface; this
// package owns the port lease, the time bound and the progress events.
package firmware

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/boards"
	"github.com/tswio/panelcore/internal/device"
	"github.com/tswio/panelcore/internal/events"
)

// DefaultUploadTimeout bounds one flash run end to end.
const DefaultUploadTimeout = 120 * time.Second

// ProgressFunc reports flashing progress. percent is 0..100.
type ProgressFunc func(percent int, message string)

// Flasher writes a firmware image to a board. Implementations wrap the
// external flashing tool and must honor ctx cancellation.
type Flasher interface {
	Upload(ctx context.Context, port string, board boards.Definition, imagePath string, onProgress ProgressFunc) error
}

// Manager runs uploads with exclusive port access.
type Manager struct {
	registry *device.Registry
	loader   *boards.Loader
	flasher  Flasher
	hub      *events.Hub
	logger   *zap.Logger
	timeout  time.Duration
}

// NewManager creates a manager. timeout <= 0 selects the default bound.
func NewManager(registry *device.Registry, loader *boards.Loader, flasher Flasher, hub *events.Hub, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &Manager{
		registry: registry,
		loader:   loader,
		flasher:  flasher,
		hub:      hub,
		logger:   logger,
		timeout:  timeout,
	}
}

// Upload flashes imagePath onto the board connected at port. The port is
// leased away from the device registry for the duration and always returned,
// whatever the outcome.
func (m *Manager) Upload(ctx context.Context, port, boardID, imagePath string) error {
	board, err := m.loader.Load(boardID)
	if err != nil {
		return fmt.Errorf("failed to load board definition: %w", err)
	}

	token, err := m.registry.RequestUploadAccess(port)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.registry.ReleaseUploadAccess(port, token); err != nil {
			m.logger.Error("Failed to release upload lease",
				zap.String("port", port), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.logger.Info("Firmware upload started",
		zap.String("port", port), zap.String("board", boardID))
	m.hub.Publish(events.New(events.TypeUploadStarted, events.UploadData{
		Port:  port,
		Board: boardID,
	}))

	started := time.Now()
	err = m.flasher.Upload(ctx, port, *board, imagePath, func(percent int, message string) {
		m.hub.Publish(events.New(events.TypeUploadProgress, events.UploadData{
			Port:    port,
			Board:   boardID,
			Percent: percent,
			Message: message,
		}))
	})
	duration := time.Since(started)

	if err != nil {
		m.logger.Warn("Firmware upload failed",
			zap.String("port", port), zap.Duration("duration", duration), zap.Error(err))
		m.hub.Publish(events.New(events.TypeUploadFailed, events.UploadData{
			Port:     port,
			Board:    boardID,
			Duration: duration.Milliseconds(),
			Error:    err.Error(),
		}))
		return fmt.Errorf("firmware upload failed: %w", err)
	}

	m.logger.Info("Firmware upload completed",
		zap.String("port", port), zap.Duration("duration", duration))
	m.hub.Publish(events.New(events.TypeUploadCompleted, events.UploadData{
		Port:     port,
		Board:    boardID,
		Percent:  100,
		Duration: duration.Milliseconds(),
	}))
	return nil
}
