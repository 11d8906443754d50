// Package scripting hosts JavaScript extensions on sobek runtimes. Each
// extension file gets its own runtime; every entry into JS funnels through one
// loop goroutine because the runtimes are not goroutine-safe. Extensions talk
// to the workbench through the alcove global, which bridges to a ViewHost.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alcoveio/alcove/pkg/alcove"
)

// ErrEngineClosed is returned when the engine no longer accepts work.
var ErrEngineClosed = errors.New("scripting: engine closed")

const defaultCallTimeout = 30 * time.Second

// Options tune the engine.
type Options struct {
	// CallTimeout bounds workbench calls made from inside JS, which have no
	// context of their own. Zero means 30s.
	CallTimeout time.Duration
}

// Engine loads extension scripts and keeps their runtimes alive. All JS
// execution is serialized through the engine's loop goroutine.
type Engine struct {
	host        *alcove.ViewHost
	logger      zerolog.Logger
	callTimeout time.Duration

	jobs chan func()
	done chan struct{}

	closed atomic.Bool

	mu         sync.Mutex
	extensions []*Extension
}

// NewEngine creates an engine that registers providers against host and
// starts its loop goroutine.
func NewEngine(host *alcove.ViewHost, opts Options, logger zerolog.Logger) *Engine {
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	e := &Engine{
		host:        host,
		logger:      logger.With().Str("component", "scripting").Logger(),
		callTimeout: callTimeout,
		jobs:        make(chan func()),
		done:        make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Engine) loop() {
	for {
		select {
		case fn := <-e.jobs:
			fn()
		case <-e.done:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish. Submission
// honors ctx; once the job is queued the caller waits it out, so anything
// long-running inside fn must be interruptible by other means.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.jobs <- func() { defer close(finished); fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}

	<-finished
	return nil
}

// post queues fn on the loop goroutine without waiting. Dropped when the
// engine is closed.
func (e *Engine) post(fn func()) {
	select {
	case e.jobs <- fn:
	case <-e.done:
	}
}

// LoadScript evaluates src as a new extension named name. The name shows up
// in logs and is the default extension attribution for providers registered
// by the script.
func (e *Engine) LoadScript(ctx context.Context, name, src string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	ext := newExtension(e, name)

	var evalErr error
	if err := e.do(ctx, func() {
		evalErr = ext.eval(src)
	}); err != nil {
		return err
	}
	if evalErr != nil {
		return fmt.Errorf("extension %s: %w", name, evalErr)
	}

	e.mu.Lock()
	e.extensions = append(e.extensions, ext)
	e.mu.Unlock()

	e.logger.Info().Str("extension", name).Msg("extension loaded")
	return nil
}

// LoadFile loads one extension script from disk.
func (e *Engine) LoadFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read extension: %w", err)
	}
	return e.LoadScript(ctx, extensionName(path), string(src))
}

// LoadDir loads every .js file in dir, sorted by name. A non-empty allow list
// restricts loading to the named files (with or without the .js suffix). A
// missing directory loads nothing. Returns how many extensions loaded; a
// script that fails to evaluate is skipped with a log entry rather than
// aborting the rest.
func (e *Engine) LoadDir(ctx context.Context, dir string, allow []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Debug().Str("dir", dir).Msg("extensions directory does not exist")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read extensions directory: %w", err)
	}

	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[strings.TrimSuffix(name, ".js")] = true
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		if len(allowed) > 0 && !allowed[extensionName(entry.Name())] {
			e.logger.Debug().Str("file", entry.Name()).Msg("extension not in allow list")
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		if err := e.LoadFile(ctx, filepath.Join(dir, name)); err != nil {
			if errors.Is(err, ErrEngineClosed) || ctx.Err() != nil {
				return loaded, err
			}
			e.logger.Error().Err(err).Str("file", name).Msg("extension failed to load")
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Extensions returns the names of the loaded extensions, in load order.
func (e *Engine) Extensions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.extensions))
	for _, ext := range e.extensions {
		names = append(names, ext.name)
	}
	return names
}

// Close unregisters every provider the extensions registered, interrupts
// their runtimes, and stops the loop. The engine accepts no work afterwards.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	extensions := e.extensions
	e.extensions = nil
	e.mu.Unlock()

	var errs []error
	for _, ext := range extensions {
		if err := ext.dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	close(e.done)
	for _, ext := range extensions {
		ext.rt.Interrupt(ErrEngineClosed)
	}
	return errors.Join(errs...)
}

// callCtx builds the context for workbench calls made from JS natives.
func (e *Engine) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.callTimeout)
}

// extensionName derives the extension name from its file name.
func extensionName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".js")
}
