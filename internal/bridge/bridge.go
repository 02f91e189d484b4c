// Package bridge carries store reads and writes across the worker boundary.
// Workers never hold the store; they hold a Client that speaks a
// correlation-id request/reply protocol with the owning Server, so the
// single-writer property of the device store survives any number of
// concurrent pollers.
package bridge

import "errors"

// Op distinguishes the two store operations a worker may perform.
type Op int

const (
	OpGet Op = iota
	OpSet
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "store:get"
	case OpSet:
		return "store:set"
	default:
		return "store:unknown"
	}
}

// Request travels from a worker to the store owner. ReplyTo is the sending
// client's inbox; the server must answer every request exactly once.
type Request struct {
	ID      string
	Op      Op
	Key     string
	Value   string
	ReplyTo chan<- Reply
}

// Reply answers one Request, matched by ID.
type Reply struct {
	ID    string
	Value string
	Err   string
}

// ErrTimeout is returned when no reply arrives within the client deadline.
var ErrTimeout = errors.New("bridge: request timed out")
