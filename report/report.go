// Package report provides UVM-style message reporting on top of log/slog.
//
// Messages carry an id string and a reporter (the full hierarchical name of
// the component or sequence that raised them). Fatal messages stop the
// current process by panicking with a *FatalError, which the kernel turns
// into a failed run.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/akita/v4/sim"
)

const (
	// LevelTrace is used for scheduler and arbitration tracing. It sits
	// between Debug and Info so that an Info handler hides it.
	LevelTrace slog.Level = slog.LevelDebug + 2

	// LevelFatal is the slog level of UVM_FATAL messages.
	LevelFatal slog.Level = slog.LevelError + 4
)

// Severity is the UVM severity of a message.
type Severity int

// The UVM severities.
const (
	Info Severity = iota
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "UVM_INFO"
	case Warning:
		return "UVM_WARNING"
	case Error:
		return "UVM_ERROR"
	case Fatal:
		return "UVM_FATAL"
	default:
		return fmt.Sprintf("UVM_SEVERITY(%d)", int(s))
	}
}

// Level returns the slog level used to log messages of the severity.
func (s Severity) Level() slog.Level {
	switch s {
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	case Fatal:
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// A FatalError is the panic value raised by Fatal.
type FatalError struct {
	Reporter string
	ID       string
	Msg      string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("UVM_FATAL %s [%s] %s", e.Reporter, e.ID, e.Msg)
}

// A Server logs messages and keeps per-severity and per-id counts.
type Server struct {
	mu       sync.Mutex
	logger   *slog.Logger
	clock    sim.TimeTeller
	counts   map[Severity]int
	idCounts map[string]int
}

// NewServer creates a server that logs through h. A nil handler makes the
// server log through slog.Default().
func NewServer(h slog.Handler) *Server {
	s := &Server{
		counts:   make(map[Severity]int),
		idCounts: make(map[string]int),
	}

	if h != nil {
		s.logger = slog.New(h)
	}

	return s
}

// SetClock sets where the server reads the simulation time from.
func (s *Server) SetClock(clock sim.TimeTeller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock = clock
}

// Logger returns the logger used by the server.
func (s *Server) Logger() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}

	return s.logger
}

// Report logs one message and updates the counters.
func (s *Server) Report(sev Severity, reporter, id, msg string) {
	s.mu.Lock()
	s.counts[sev]++
	s.idCounts[id]++
	clock := s.clock
	s.mu.Unlock()

	args := []any{"id", id, "reporter", reporter}
	if clock != nil {
		args = append(args, "time", float64(clock.CurrentTime()))
	}

	s.Logger().Log(context.Background(), sev.Level(), msg, args...)
}

// Count returns how many messages of the given severity were reported.
func (s *Server) Count(sev Severity) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[sev]
}

// CountID returns how many messages were reported with the given id.
func (s *Server) CountID(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.idCounts[id]
}

// ResetCounts clears all counters.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = make(map[Severity]int)
	s.idCounts = make(map[string]int)
}

var defaultServer atomic.Pointer[Server]

func init() {
	defaultServer.Store(NewServer(nil))
}

// Default returns the server used by the package level functions.
func Default() *Server {
	return defaultServer.Load()
}

// SetDefault replaces the server used by the package level functions.
func SetDefault(s *Server) {
	defaultServer.Store(s)
}

// Infof reports an informational message.
func Infof(reporter, id, format string, args ...any) {
	Default().Report(Info, reporter, id, fmt.Sprintf(format, args...))
}

// Warningf reports a warning.
func Warningf(reporter, id, format string, args ...any) {
	Default().Report(Warning, reporter, id, fmt.Sprintf(format, args...))
}

// Errorf reports an error. Simulation continues.
func Errorf(reporter, id, format string, args ...any) {
	Default().Report(Error, reporter, id, fmt.Sprintf(format, args...))
}

// Fatalf reports a fatal error and panics with a *FatalError.
func Fatalf(reporter, id, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Default().Report(Fatal, reporter, id, msg)

	panic(&FatalError{Reporter: reporter, ID: id, Msg: msg})
}

// Trace logs a tracing record at LevelTrace.
func Trace(msg string, args ...any) {
	Default().Logger().Log(context.Background(), LevelTrace, msg, args...)
}
