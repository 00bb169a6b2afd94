package engine

import "sync"

// RescuerPool is a counting gate over a fixed number of rescuer slots.
// Acquire blocks while every slot is taken; Release returns a slot and
// wakes a single waiter. Wakeup order is whatever sync.Cond provides.
type RescuerPool struct {
	mu   sync.Mutex
	cond *sync.Cond
	free int
	size int
}

// NewRescuerPool creates a pool with size free slots
func NewRescuerPool(size int) *RescuerPool {
	p := &RescuerPool{free: size, size: size}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire takes a slot, waiting until one is free
func (p *RescuerPool) Acquire() {
	p.mu.Lock()
	for p.free == 0 {
		p.cond.Wait()
	}
	p.free--
	p.mu.Unlock()
}

// Release returns a slot taken by Acquire
func (p *RescuerPool) Release() {
	p.mu.Lock()
	p.free++
	p.cond.Signal()
	p.mu.Unlock()
}

// Free returns the number of idle slots
func (p *RescuerPool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// Size returns the fixed pool size
func (p *RescuerPool) Size() int {
	return p.size
}
