package workers

import (
	"fmt"
	"sync"
)

// Group joins a fixed number of asynchronous units without blocking a worker.
// The continuation is queued on the pool once every unit has reported, or as
// soon as the first unit reports an error. Later reports are ignored, so only
// the first observed error is surfaced.
type Group struct {
	pool *Pool
	then func(w *Worker, err error)

	mutex     sync.Mutex
	remaining int
	resolved  bool
}

// NewGroup creates a join point for n units. With n == 0 the continuation is
// queued immediately.
func NewGroup(pool *Pool, n int, then func(w *Worker, err error)) *Group {
	g := &Group{
		pool:      pool,
		then:      then,
		remaining: n,
	}
	if n <= 0 {
		g.resolve(nil)
	}
	return g
}

// Done records the completion of one unit
func (g *Group) Done(err error) {
	g.mutex.Lock()
	if g.resolved {
		g.mutex.Unlock()
		return
	}
	g.remaining--
	if err == nil && g.remaining > 0 {
		g.mutex.Unlock()
		return
	}
	g.mutex.Unlock()
	g.resolve(err)
}

// Resolved reports whether the continuation has been released
func (g *Group) Resolved() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.resolved
}

func (g *Group) resolve(err error) {
	g.mutex.Lock()
	if g.resolved {
		g.mutex.Unlock()
		return
	}
	g.resolved = true
	g.mutex.Unlock()

	if subErr := g.pool.Submit(func(w *Worker) { g.then(w, err) }); subErr != nil {
		if err == nil {
			err = fmt.Errorf("resume after join: %w", subErr)
		}
		g.then(nil, err)
	}
}
