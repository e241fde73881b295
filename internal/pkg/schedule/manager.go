package schedule

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/AmirHossein87/payment-plugins/internal/pkg/cache"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/database"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/env"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2/log"
)

const sweepLockKey = "paymenthood:sweep:lock"

// InvoiceSweeper is what the manager schedules, satisfied by the
// gateway service.
type InvoiceSweeper interface {
	ProcessUnpaidInvoices(ctx context.Context, asOf time.Time) gateway.SweepResult
}

// Manager runs the periodic auto-payment sweep over unpaid invoices.
type Manager struct {
	sweeper     InvoiceSweeper
	sweepTicker *time.Ticker
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global schedule manager (singleton).
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			sweeper:  gateway.NewServiceFromDB(database.GetDB()),
			interval: sweepInterval(),
			stopCh:   make(chan struct{}),
		}
	})
	return globalManager
}

// NewManager builds a manager with an explicit sweeper and interval,
// used by tests.
func NewManager(sweeper InvoiceSweeper, interval time.Duration) *Manager {
	return &Manager{
		sweeper:  sweeper,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func sweepInterval() time.Duration {
	minutes, err := strconv.Atoi(env.GetEnv("INVOICE_SWEEP_INTERVAL_MINUTES", "60"))
	if err != nil || minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// Start launches the sweep worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[Schedule Manager] Starting invoice sweep worker (interval: %s)", m.interval)

	m.sweepTicker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.sweepWorker()
}

// Stop stops the sweep worker and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Schedule Manager] Stopping invoice sweep worker...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Schedule Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Schedule Manager] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if err := m.RunSweepOnce(); err != nil {
				log.Errorf("[Schedule Manager] Invoice sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce executes a single sweep, guarded by a distributed lock
// so only one instance processes invoices at a time.
func (m *Manager) RunSweepOnce() error {
	locked, err := cache.SetNX(sweepLockKey, "1", m.interval)
	if err != nil {
		// Redis being down must not stall billing, run without the lock.
		log.Warnf("[Schedule Manager] Sweep lock unavailable: %v", err)
	} else if !locked {
		log.Debug("[Schedule Manager] Sweep already running elsewhere, skipping")
		return nil
	}
	defer func() {
		if err == nil {
			if delErr := cache.Delete(sweepLockKey); delErr != nil {
				log.Warnf("[Schedule Manager] Sweep lock release failed: %v", delErr)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result := m.sweeper.ProcessUnpaidInvoices(ctx, time.Now())
	log.Infof("[Schedule Manager] Invoice sweep finished: attempted=%d paid=%d failed=%d",
		result.Attempted, result.Paid, result.Failed)
	return nil
}
