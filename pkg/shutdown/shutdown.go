package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zarrbench/zarrbench/pkg/logging"
)

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// Manager coordinates graceful shutdown of daemon components
type Manager struct {
	mu      sync.Mutex
	funcs   []namedFunc
	timeout time.Duration
	log     *logging.Logger
}

// New creates a shutdown manager with a total shutdown budget
func New(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{timeout: timeout, log: log}
}

// Register adds a named shutdown function. Functions run in reverse
// registration order (LIFO), so register dependencies before dependents.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Wait blocks until SIGTERM or SIGINT, then runs all registered shutdown
// functions under a shared timeout.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	m.log.Info("Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	m.Shutdown()
}

// Shutdown executes all registered functions in LIFO order. Errors are logged
// and never stop the remaining functions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.funcs) - 1; i >= 0; i-- {
		nf := m.funcs[i]
		if err := nf.fn(ctx); err != nil {
			m.log.Error("Shutdown step failed", map[string]interface{}{
				"step": nf.name, "error": err.Error(),
			})
			continue
		}
		m.log.Info("Shutdown step complete", map[string]interface{}{"step": nf.name})
	}
}

// StopHTTPServer wraps an http.Server's Shutdown as a registered function
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}
