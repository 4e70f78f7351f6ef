package provider

import "sync"

// MemoryEnv is an Env held in memory.
type MemoryEnv struct {
	mu         sync.Mutex
	dataSource string
}

func (e *MemoryEnv) DataSource() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dataSource
}

func (e *MemoryEnv) Scope(dataSource string) func() {
	e.mu.Lock()
	prev := e.dataSource
	e.dataSource = dataSource
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		e.dataSource = prev
		e.mu.Unlock()
	}
}
