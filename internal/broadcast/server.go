package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zishang520/socket.io/v2/socket"

	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Scheduler runs fn on the goroutine that owns the observed sequence.
type Scheduler func(fn func())

// Server publishes a sequence to socket.io clients. Apply and Reload run on
// the owner goroutine, as does every snapshot it sends.
type Server[T any] struct {
	io       *socket.Server
	codec    *Codec[T]
	schedule Scheduler
	sub      *observed.Subscription
	logger   *slog.Logger
}

var _ txn.Sink = (*Server[int])(nil)

// NewServer subscribes to seq. headers may be nil. It must be called on the
// owner goroutine.
func NewServer[T any](ctx context.Context, seq *observed.Sequence[T], headers lazy.Seq[T], encode Encoder[T], schedule Scheduler) *Server[T] {
	s := &Server[T]{
		io:       socket.NewServer(nil, nil),
		codec:    NewCodec(seq, headers, encode),
		schedule: schedule,
		logger:   ctxlog.FromContext(ctx).With("component", "broadcast"),
	}
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.logger.Info("Client connected.", "sid", client.Id())
		s.schedule(func() { s.sendFrame(client) })

		client.On(EventSnapshot, func(...any) {
			s.logger.Debug("Snapshot requested.", "sid", client.Id())
			s.schedule(func() { s.sendFrame(client) })
		})
		client.On("disconnect", func(reason ...any) {
			s.logger.Info("Client disconnected.", "sid", client.Id(), "reason", reason)
		})
	})
	s.sub = seq.Subscribe(s)
	return s
}

// Handler serves the socket.io endpoint. Mount it at /socket.io/.
func (s *Server[T]) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Apply emits tx with the values clients need to replay it.
func (s *Server[T]) Apply(tx txn.Transaction) error {
	d, err := s.codec.Delta(tx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	s.io.Emit(EventTransaction, string(payload))
	s.logger.Debug("Transaction broadcast.", "transaction", tx)
	return nil
}

// Reload tells clients to fetch a new snapshot.
func (s *Server[T]) Reload() {
	s.io.Emit(EventReload)
	s.logger.Debug("Reload broadcast.")
}

// Codec returns the payload encoder, for serving snapshots elsewhere.
func (s *Server[T]) Codec() *Codec[T] {
	return s.codec
}

// Close stops following the sequence and shuts the socket.io server down.
func (s *Server[T]) Close() {
	s.sub.Unsubscribe()
	s.io.Close(nil)
}

func (s *Server[T]) sendFrame(client *socket.Socket) {
	f, err := s.codec.Frame()
	if err != nil {
		s.logger.Error("Failed to encode snapshot.", "sid", client.Id(), "error", err)
		return
	}
	payload, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("Failed to encode snapshot.", "sid", client.Id(), "error", err)
		return
	}
	client.Emit(EventSnapshot, string(payload))
}

