package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"hdsfetch/internal/hds"
	"hdsfetch/internal/logger"
)

// Manager tracks concurrent downloads by id. Each download owns its own
// transport and output.
type Manager struct {
	mutex     sync.RWMutex
	downloads map[string]*Download
	fetcher   Fetcher
	logger    logger.Logger
	buffer    int
}

// NewManager creates a new download manager.
func NewManager(f Fetcher, log logger.Logger) *Manager {
	return &Manager{
		downloads: make(map[string]*Download),
		fetcher:   f,
		logger:    log,
		buffer:    DefaultBuffer,
	}
}

// Start launches a download under id. An id can be reused once its previous
// download has finished.
func (m *Manager) Start(ctx context.Context, id string, req hds.Request, dest io.WriteCloser) (*Download, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if d, found := m.downloads[id]; found {
		select {
		case <-d.Done():
		default:
			return nil, fmt.Errorf("download %q is already running", id)
		}
	}

	d := Start(ctx, id, m.fetcher, req, dest, m.logger, m.buffer)
	m.downloads[id] = d
	return d, nil
}

// Get returns the download registered under id.
func (m *Manager) Get(id string) (*Download, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	d, found := m.downloads[id]
	return d, found
}

// Stop stops the download registered under id.
func (m *Manager) Stop(id string) error {
	d, found := m.Get(id)
	if !found {
		return fmt.Errorf("download %q not found", id)
	}
	d.Stop()
	return nil
}

// StopAll stops every download and waits for them to finish.
func (m *Manager) StopAll() {
	m.logger.Infof("Stopping all downloads...")
	for _, d := range m.snapshot() {
		d.Stop()
	}
	m.Wait()
}

// Wait blocks until every registered download has finished.
func (m *Manager) Wait() {
	for _, d := range m.snapshot() {
		<-d.Done()
	}
}

// Statuses returns the latest event of every download.
func (m *Manager) Statuses() []Event {
	downloads := m.snapshot()
	events := make([]Event, 0, len(downloads))
	for _, d := range downloads {
		events = append(events, d.Status())
	}
	return events
}

func (m *Manager) snapshot() []*Download {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	downloads := make([]*Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		downloads = append(downloads, d)
	}
	return downloads
}
