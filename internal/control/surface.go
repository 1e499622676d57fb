package control

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Logger defines the logging interface used by the surfaces.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators every surface shares.
type Deps struct {
	Bridge  *realtime.Bridge
	Catalog *device.Catalog
	Logger  Logger
}

// RenderFunc receives every new frame of a surface, on the surface's
// loop. It must not block for long and must not call Close.
type RenderFunc func(Frame)

// taskQueueSize bounds queued tasks; posters block beyond it.
const taskQueueSize = 64

type surfaceState int

const (
	stateNew surfaceState = iota
	stateOpen
	stateClosed
)

// core is the event loop and bookkeeping shared by every surface. Fields
// below the loop marker belong to the loop goroutine.
type core struct {
	view   View
	deps   Deps
	env    Env
	render RenderFunc
	logger Logger

	// Surface hooks, called on the loop.
	apply   func(path string, v store.Value)
	project func(f *Frame)

	mu      sync.Mutex
	state   surfaceState
	streams []*realtime.Stream
	// firsts is closed per path on its first value; fixed once open.
	firsts map[string]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan func()
	quit   chan struct{}
	exited chan struct{}
	loaded chan struct{}
	pumps  sync.WaitGroup

	// loop
	waiting map[string]struct{}
	notices []Notice
}

func newCore(view View, deps Deps, env Env, render RenderFunc) *core {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if render == nil {
		render = func(Frame) {}
	}
	return &core{
		view:    view,
		deps:    deps,
		env:     env,
		render:  render,
		logger:  logger,
		tasks:   make(chan func(), taskQueueSize),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
		loaded:  make(chan struct{}),
		waiting: make(map[string]struct{}),
	}
}

// open subscribes to paths and starts the loop and one pump per stream.
// A failed subscription cancels the ones already made.
func (c *core) open(ctx context.Context, paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateOpen:
		return ErrAlreadyOpen
	case stateClosed:
		return ErrClosed
	}
	if !c.env.Authenticated() {
		return ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	streams := make([]*realtime.Stream, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			s, err := c.deps.Bridge.Subscribe(p)
			if err != nil {
				return err
			}
			streams[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range streams {
			if s != nil {
				s.Cancel()
			}
		}
		return fmt.Errorf("control: open %s: %w", c.view, err)
	}

	c.firsts = make(map[string]chan struct{}, len(paths))
	for _, p := range paths {
		c.waiting[p] = struct{}{}
		c.firsts[p] = make(chan struct{})
	}
	if len(c.waiting) == 0 {
		close(c.loaded)
	}
	// Writes outlive the request that opened the surface; Close cancels
	// them.
	c.ctx, c.cancel = context.WithCancel(store.WithActor(context.WithoutCancel(ctx), c.env.Actor()))
	c.streams = streams
	c.state = stateOpen

	go c.run()
	for _, s := range streams {
		c.pumps.Add(1)
		go c.pump(s)
	}
	c.post(c.publish)
	c.logger.Debug("surface opened", "view", c.view, "paths", len(paths), "user", c.env.Principal.Email)
	return nil
}

func (c *core) run() {
	defer close(c.exited)
	for {
		select {
		case task := <-c.tasks:
			task()
		case <-c.quit:
			return
		}
	}
}

// pump forwards stream values to the loop.
func (c *core) pump(s *realtime.Stream) {
	defer c.pumps.Done()
	path := s.Path()
	for v := range s.Values(c.ctx) {
		if !c.post(func() { c.receive(path, v) }) {
			return
		}
	}
}

// post queues task on the loop. It reports false once the surface is
// closing.
func (c *core) post(task func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.tasks <- task:
		return true
	case <-c.quit:
		return false
	}
}

// receive runs on the loop.
func (c *core) receive(path string, v store.Value) {
	if _, ok := c.waiting[path]; ok {
		delete(c.waiting, path)
		close(c.firsts[path])
		if len(c.waiting) == 0 {
			close(c.loaded)
		}
	}
	c.apply(path, v)
	c.publish()
}

// frame runs on the loop.
func (c *core) frame() Frame {
	f := Frame{
		View:    c.view,
		User:    c.env.Principal.Name(),
		Theme:   c.env.Theme,
		Loading: len(c.waiting) > 0,
		Notices: slices.Clone(c.notices),
	}
	if f.Notices == nil {
		f.Notices = []Notice{}
	}
	c.project(&f)
	return f
}

// publish runs on the loop.
func (c *core) publish() {
	c.render(c.frame())
}

// write sends v to path off the loop and runs done on the loop with the
// outcome. A failure raises a notice before done runs.
func (c *core) write(path string, v store.Value, done func(err error)) {
	ctx := c.ctx
	go func() {
		err := c.deps.Bridge.Write(ctx, path, v)
		c.post(func() {
			if err != nil {
				c.fail(path, err)
			}
			done(err)
			c.publish()
		})
	}()
}

// fail runs on the loop.
func (c *core) fail(path string, err error) {
	n := newNotice(err, path)
	c.logger.Warn("write failed", "view", c.view, "path", path, "kind", n.Kind, "user", c.env.Principal.Email, "error", err)
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = slices.Delete(c.notices, 0, len(c.notices)-maxNotices)
	}
}

// intent runs start on the loop and waits for it to call done. Use it for
// intents whose outcome the caller wants to know.
func (c *core) intent(ctx context.Context, start func(done func(error))) error {
	if err := c.usable(); err != nil {
		return err
	}
	result := make(chan error, 1)
	if !c.post(func() { start(func(err error) { result <- err }) }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClosed
	}
}

// intentOn is intent for intents derived from the mirrored value of path.
// It waits for path's first value so an unobserved path is never taken
// for an absent one.
func (c *core) intentOn(ctx context.Context, path string, start func(done func(error))) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.mu.Lock()
	first := c.firsts[path]
	c.mu.Unlock()
	if first != nil {
		select {
		case <-first:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return ErrClosed
		}
	}
	return c.intent(ctx, start)
}

func (c *core) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateNew:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// Ready blocks until every path has delivered its first value.
func (c *core) Ready(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	select {
	case <-c.loaded:
		return nil
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current frame.
func (c *core) Snapshot(ctx context.Context) (Frame, error) {
	if err := c.usable(); err != nil {
		return Frame{}, err
	}
	out := make(chan Frame, 1)
	if !c.post(func() { out <- c.frame() }) {
		return Frame{}, ErrClosed
	}
	select {
	case f := <-out:
		return f, nil
	case <-c.quit:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Dismiss removes the notice with the given ID. Unknown IDs are ignored.
func (c *core) Dismiss(id string) error {
	if err := c.usable(); err != nil {
		return err
	}
	if !c.post(func() {
		n := len(c.notices)
		c.notices = slices.DeleteFunc(c.notices, func(x Notice) bool { return x.ID == id })
		if len(c.notices) != n {
			c.publish()
		}
	}) {
		return ErrClosed
	}
	return nil
}

// Close cancels every subscription and pending write and stops the loop.
// Once Close returns the render callback is not called again. Close is
// idempotent and must not be called from the render callback.
func (c *core) Close() {
	c.mu.Lock()
	prev := c.state
	c.state = stateClosed
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	if prev != stateOpen {
		return
	}

	c.cancel()
	for _, s := range streams {
		s.Cancel()
	}
	close(c.quit)
	<-c.exited
	c.pumps.Wait()
	c.logger.Debug("surface closed", "view", c.view)
}

// Env returns the environment the surface renders in.
func (c *core) Env() Env {
	return c.env
}

// View returns the surface's view name.
func (c *core) View() View {
	return c.view
}
