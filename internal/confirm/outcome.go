// Package confirm pairs confirmation requests published on the event bus
// with their correlated responses, resolving each request exactly once as
// answered, cancelled or timed out.
package confirm

import (
	"errors"
	"sync"
)

// Status tags how a confirmation ended.
type Status string

const (
	StatusAnswered  Status = "answered"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// ErrTimedOut is the cause recorded for a timed out confirmation.
var ErrTimedOut = errors.New("no response received")

// Outcome is the result of one confirmation. Response is set only when
// Status is StatusAnswered; Err carries the cause otherwise.
type Outcome[R any] struct {
	ID       string
	Status   Status
	Response R
	Err      error
}

// Answered reports whether a correlated response arrived.
func (o Outcome[R]) Answered() bool { return o.Status == StatusAnswered }

// pending is a single-resolution future. The first resolve wins; later calls
// return false and leave the outcome untouched.
type pending[R any] struct {
	once sync.Once
	done chan struct{}
	out  Outcome[R]
}

func newPending[R any](id string) *pending[R] {
	return &pending[R]{
		done: make(chan struct{}),
		out:  Outcome[R]{ID: id},
	}
}

func (p *pending[R]) resolve(status Status, resp R, err error) bool {
	won := false
	p.once.Do(func() {
		p.out.Status = status
		p.out.Response = resp
		p.out.Err = err
		won = true
		close(p.done)
	})
	return won
}

// Done is closed once the outcome is settled.
func (p *pending[R]) Done() <-chan struct{} { return p.done }

// result must only be read after Done is closed.
func (p *pending[R]) result() Outcome[R] { return p.out }
