package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientOptions tunes a websocket client
type ClientOptions struct {
	SendBuffer        int
	OverflowPolicy    string
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
}

// ClientOptionsFromConfig maps hub configuration to client options
func ClientOptionsFromConfig(cfg config.HubConfig) ClientOptions {
	return ClientOptions{
		SendBuffer:        cfg.SendBuffer,
		OverflowPolicy:    cfg.OverflowPolicy,
		WriteTimeout:      cfg.WriteTimeout,
		PingInterval:      cfg.PingInterval,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
		Burst:             cfg.Burst,
	}
}

const (
	reasonBufferFull  = "send buffer full"
	reasonWriteFailed = "write failed"
	reasonHeartbeat   = "heartbeat failed"
	reasonPeerClosed  = "connection closed"
	reasonShutdown    = "server shutting down"
	reasonIdle        = "idle timeout"
)

// Client is the websocket transport of one Connection. It owns a bounded
// outbound queue drained by a single writer goroutine.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	c       *Connection
	opts    ClientOptions
	send    chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	closeReason string
	closeOnce   sync.Once
}

// NewClient wraps an accepted websocket and attaches it to c
func NewClient(h *Hub, conn *websocket.Conn, c *Connection, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &Client{
		hub:    h,
		conn:   conn,
		c:      c,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.MessagesPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), burst)
	}
	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}

	c.Attach(cl)
	return cl
}

// Send enqueues a frame without blocking. When the queue is full the
// overflow policy decides between dropping the oldest frame and closing
// the connection.
func (cl *Client) Send(msg []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return ErrConnectionClosed
	}

	select {
	case cl.send <- msg:
		return nil
	default:
	}

	if cl.opts.OverflowPolicy == config.OverflowDropOldest {
		select {
		case <-cl.send:
		default:
		}
		select {
		case cl.send <- msg:
			return nil
		default:
			return ErrSendBufferFull
		}
	}

	// Close runs through the hub, which calls back into Close on this
	// client, so it cannot happen while mu is held.
	go cl.hub.Close(context.Background(), cl.c, reasonBufferFull)
	return ErrSendBufferFull
}

// Close stops the writer, which then closes the websocket with reason
func (cl *Client) Close(reason string) {
	cl.closeOnce.Do(func() {
		cl.mu.Lock()
		cl.closed = true
		cl.closeReason = reason
		cl.mu.Unlock()
		cl.cancel()
	})
}

// Run pumps frames until the connection ends. Reads use ctx; the writer
// lives until Close.
func (cl *Client) Run(ctx context.Context) {
	go cl.writePump()
	cl.readPump(ctx)
}

func (cl *Client) readPump(ctx context.Context) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		cl.hub.Close(closeCtx, cl.c, reasonPeerClosed)
		cl.Close(reasonPeerClosed)
	}()

	for {
		typ, data, err := cl.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Debug().Str("connection_id", cl.c.ID.String()).Int("status", int(status)).Msg("Client disconnected")
			} else if status == -1 {
				log.Debug().Err(err).Str("connection_id", cl.c.ID.String()).Msg("Read ended")
			} else {
				log.Warn().Err(err).Str("connection_id", cl.c.ID.String()).Int("status", int(status)).Msg("Read error")
			}
			return
		}

		if typ != websocket.MessageText {
			cl.hub.sendError(cl.c, "malformed_message", fmt.Errorf("%w: only text frames are accepted", ErrMalformedMessage))
			continue
		}
		if cl.limiter != nil && !cl.limiter.Allow() {
			cl.hub.sendError(cl.c, "rate_limited", errors.New("too many messages"))
			continue
		}

		if err := cl.hub.HandleFrame(ctx, cl.c, data); err != nil {
			return
		}
	}
}

func (cl *Client) writePump() {
	var pings <-chan time.Time
	if cl.opts.PingInterval > 0 {
		ticker := time.NewTicker(cl.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-cl.ctx.Done():
			cl.closeSocket()
			return

		case msg := <-cl.send:
			wctx, cancel := context.WithTimeout(cl.ctx, cl.opts.WriteTimeout)
			err := cl.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("connection_id", cl.c.ID.String()).Msg("Write failed")
				cl.hub.Close(context.Background(), cl.c, reasonWriteFailed)
				cl.Close(reasonWriteFailed)
			}

		case <-pings:
			pctx, cancel := context.WithTimeout(cl.ctx, cl.opts.WriteTimeout)
			err := cl.conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("connection_id", cl.c.ID.String()).Msg("Ping failed")
				cl.hub.Close(context.Background(), cl.c, reasonHeartbeat)
				cl.Close(reasonHeartbeat)
			}
		}
	}
}

func (cl *Client) closeSocket() {
	cl.mu.Lock()
	reason := cl.closeReason
	cl.mu.Unlock()

	status := websocket.StatusNormalClosure
	switch reason {
	case reasonBufferFull:
		status = websocket.StatusPolicyViolation
	case reasonShutdown:
		status = websocket.StatusGoingAway
	}

	if err := cl.conn.Close(status, reason); err != nil {
		log.Debug().Err(err).Str("connection_id", cl.c.ID.String()).Msg("Websocket close")
		cl.conn.CloseNow()
	}
}
