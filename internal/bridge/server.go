package bridge

import (
	"context"
	"log/slog"
	"time"
)

// StoreBackend is the slice of the device store the bridge needs.
type StoreBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

const applyTimeout = 2 * time.Second

// Server owns the store side of the bridge. It drains the request channel
// and answers every request exactly once; a malformed request never stops
// the loop.
type Server struct {
	store    StoreBackend
	requests chan Request
	logger   *slog.Logger
}

// NewServer builds a server around the store.
func NewServer(store StoreBackend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		requests: make(chan Request, 64),
		logger:   logger,
	}
}

// Requests is the channel workers send on; hand it to NewClient.
func (s *Server) Requests() chan<- Request {
	return s.requests
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.handle(ctx, req)
		}
	}
}

func (s *Server) handle(ctx context.Context, req Request) {
	if req.ReplyTo == nil {
		s.logger.Warn("bridge request without reply channel", "op", req.Op.String(), "key", req.Key)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	reply := Reply{ID: req.ID}
	switch req.Op {
	case OpGet:
		value, err := s.store.Get(opCtx, req.Key)
		if err != nil {
			reply.Err = err.Error()
		} else {
			reply.Value = value
		}
	case OpSet:
		if err := s.store.Set(opCtx, req.Key, req.Value); err != nil {
			reply.Err = err.Error()
		}
	default:
		reply.Err = "unknown op"
	}

	// Reply channels are buffered per call; never block the serve loop on
	// a caller that already timed out.
	select {
	case req.ReplyTo <- reply:
	default:
		s.logger.Warn("dropping bridge reply, caller gone", "id", req.ID)
	}
}
