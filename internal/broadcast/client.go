package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/snapshot"
)

// ConnectTimeout bounds how long Dial waits for the first connection.
const ConnectTimeout = 15 * time.Second

// Client follows a remote Server and exposes its state as a local root
// sequence. Socket events are handed to the scheduler, so the sequence is
// only touched on the owner goroutine.
//
// The open connection keeps the client and its root reachable, so the root
// is never reclaimed by the garbage collector. Close must be called.
type Client struct {
	io       *socket.Socket
	schedule Scheduler
	state    state
	root     *observed.Sequence[cty.Value]
	logger   *slog.Logger
}

// Dial connects to the socket.io endpoint at rawURL and waits for the
// connection to be established.
func Dial(ctx context.Context, rawURL string, schedule Scheduler, opts ...observed.Option) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("component", "broadcast_client", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	ioOpts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		ioOpts.SetPath(parsedURL.Path)
	}
	ioOpts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, ioOpts)
	io := manager.Socket("/", ioOpts)

	c := newClient(io, schedule, logger, opts...)
	c.listen()

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connectChan <- connectError(errs)
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", ConnectTimeout)
	}
}

func newClient(io *socket.Socket, schedule Scheduler, logger *slog.Logger, opts ...observed.Option) *Client {
	c := &Client{io: io, schedule: schedule, logger: logger}
	c.root = observed.New(c.generator(), lifetime.NewChain(lifetime.Own(io, c.disconnect)), opts...)
	return c
}

func (c *Client) disconnect() {
	if c.io != nil {
		c.io.Disconnect()
	}
}

// connectError turns the arguments of a connect_error event into an error.
func connectError(args []any) error {
	if len(args) == 0 {
		return fmt.Errorf("connection refused")
	}
	if err, ok := args[0].(error); ok && err != nil {
		return err
	}
	return fmt.Errorf("%v", args[0])
}

// Sequence returns the local root mirroring the remote sequence.
func (c *Client) Sequence() *observed.Sequence[cty.Value] {
	return c.root
}

// Headers projects the remote section headers.
func (c *Client) Headers() lazy.Seq[cty.Value] {
	return lazy.Generate(lazy.Generator[cty.Value]{
		Count: func() int { return len(c.state.headers) },
		Generate: func(i int) (cty.Value, bool) {
			if i >= len(c.state.headers) || c.state.headers[i].IsNull() {
				return cty.NilVal, false
			}
			return c.state.headers[i], true
		},
	})
}

// Close releases the root sequence, which disconnects the socket. Events
// still queued on the scheduler are dropped.
func (c *Client) Close() {
	c.root.Release()
}

func (c *Client) generator() sections.Generator[cty.Value] {
	return sections.Generator[cty.Value]{
		Sections: func() int { return len(c.state.sections) },
		Rows:     func(section int) int { return len(c.state.sections[section]) },
		Generate: func(section, row int) (cty.Value, bool) {
			v := c.state.sections[section][row]
			return v, !v.IsNull()
		},
	}
}

func (c *Client) listen() {
	c.io.On(types.EventName(EventSnapshot), func(args ...any) {
		var f Frame
		if err := c.decode(args, &f); err != nil {
			c.logger.Error("Discarding snapshot.", "error", err)
			return
		}
		c.schedule(func() { c.replace(f) })
	})
	c.io.On(types.EventName(EventTransaction), func(args ...any) {
		var d Delta
		if err := c.decode(args, &d); err != nil {
			c.logger.Error("Discarding transaction.", "error", err)
			c.requestSnapshot()
			return
		}
		c.schedule(func() { c.apply(d) })
	})
	c.io.On(types.EventName(EventReload), func(...any) {
		c.requestSnapshot()
	})
}

func (c *Client) decode(args []any, target any) error {
	if len(args) == 0 {
		return fmt.Errorf("empty payload")
	}
	raw, ok := args[0].(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", args[0])
	}
	return json.Unmarshal([]byte(raw), target)
}

func (c *Client) replace(f Frame) {
	if c.root.Released() {
		return
	}
	st, err := decodeFrame(f)
	if err != nil {
		c.logger.Error("Discarding snapshot.", "error", err)
		return
	}
	c.state = st
	c.root.FullReload()
	c.logger.Debug("Snapshot applied.", "sections", len(st.sections))
}

func (c *Client) apply(d Delta) {
	if c.root.Released() {
		return
	}
	next, err := c.state.apply(d)
	if err != nil {
		c.logger.Warn("Transaction does not match local state.", "error", err)
		c.requestSnapshot()
		return
	}
	err = snapshot.Publish(c.root, d.Transaction.Ops(), func() { c.state = next })
	if err != nil {
		c.logger.Warn("Transaction rejected locally.", "error", err)
		c.requestSnapshot()
	}
}

func (c *Client) requestSnapshot() {
	if c.io == nil {
		return
	}
	c.io.Emit(EventSnapshot)
}
