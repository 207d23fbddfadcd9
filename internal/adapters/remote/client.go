// Package remote talks to a model server over websockets. One connection carries one
// request at a time; a bounded pool of connections gives the server's concurrency.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// Tasks understood by the model server.
const (
	TaskStatus    = "status"
	TaskDetect    = "detect"
	TaskLandmarks = "landmarks"
)

const (
	defaultPoolSize    = 4
	defaultTimeout     = 10 * time.Second
	defaultJPEGQuality = 90
	closeWait          = time.Second
)

// Request is one message sent to the model server.
type Request struct {
	ID                  string  `json:"id"`
	Task                string  `json:"task"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	Image               string  `json:"image,omitempty"`
}

// Detection is a raw detection on the wire.
type Detection struct {
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
}

// WirePoint is a 2D point on the wire.
type WirePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Correspondence is a landmark pair on the wire.
type Correspondence struct {
	Image WirePoint `json:"image"`
	Field WirePoint `json:"field"`
}

// Response is one message received from the model server.
type Response struct {
	ID              string           `json:"id"`
	Detections      []Detection      `json:"detections,omitempty"`
	Correspondences []Correspondence `json:"correspondences,omitempty"`
	Ready           map[string]bool  `json:"ready,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// errUnreachable marks failures to reach the server, as opposed to a server-side error.
var errUnreachable = errors.New("model server unreachable")

// ServerError is an error reported by the model server for one request.
type ServerError struct {
	Task    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error: %s", e.Task, e.Message)
}

// Client is a pooled websocket client. It is safe for concurrent use.
type Client struct {
	url         string
	dialer      *ws.Dialer
	timeout     time.Duration
	jpegQuality int
	size        int

	slots chan struct{}
	idle  chan *ws.Conn

	ready  atomic.Pointer[map[string]bool]
	mu     sync.Mutex
	closed bool

	wg     sync.WaitGroup
	stopCh chan struct{}

	log logger.Logger
}

// New creates a client for the server at url. No connection is made until the first call.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialer:      ws.DefaultDialer,
		timeout:     defaultTimeout,
		jpegQuality: defaultJPEGQuality,
		size:        defaultPoolSize,
		stopCh:      make(chan struct{}),
		log:         logger.OrNop("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.slots = make(chan struct{}, c.size)
	c.idle = make(chan *ws.Conn, c.size)
	empty := map[string]bool{}
	c.ready.Store(&empty)
	return c
}

// Size returns the maximum number of concurrent requests.
func (c *Client) Size() int { return c.size }

// Ready reports whether the last status handshake found task loaded.
func (c *Client) Ready(task string) bool {
	return (*c.ready.Load())[task]
}

// Status asks the server which tasks are loaded and caches the answer.
// A failed handshake marks every task as not loaded.
func (c *Client) Status(ctx context.Context) (map[string]bool, error) {
	resp, err := c.do(ctx, Request{Task: TaskStatus})
	if err != nil {
		empty := map[string]bool{}
		c.ready.Store(&empty)
		return nil, err
	}
	ready := make(map[string]bool, len(resp.Ready))
	for k, v := range resp.Ready {
		ready[k] = v
	}
	c.ready.Store(&ready)
	return ready, nil
}

// Watch refreshes the status every interval until ctx is done or the client is closed.
func (c *Client) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				if _, err := c.Status(ctx); err != nil {
					c.log.Warn(ctx, "status handshake failed", logger.Error(err))
				}
			}
		}
	}()
}

// Close stops Watch and closes idle connections. In-flight requests finish on their own.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	for {
		select {
		case conn := <-c.idle:
			closeConn(conn)
		default:
			return nil
		}
	}
}

// do sends req on a pooled connection and waits for the matching response.
func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	defer func() { <-c.slots }()

	conn, err := c.conn(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("remote", "dial")
		return Response{}, err
	}

	resp, err := c.roundTrip(ctx, conn, req)
	if err != nil {
		closeConn(conn)
		if cerr := contextErr(ctx); cerr != nil {
			return Response{}, cerr
		}
		metrics.RecordErrorByComponent("remote", "transport")
		return Response{}, fmt.Errorf("%w: %w", errUnreachable, err)
	}
	c.release(conn)

	if resp.Error != "" {
		return resp, &ServerError{Task: req.Task, Message: resp.Error}
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, conn *ws.Conn, req Request) (Response, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return Response{}, err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return Response{}, err
	}
	// Unblock the read when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return Response{}, fmt.Errorf("write %s: %w", req.Task, err)
	}
	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s: %w", req.Task, err)
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	return resp, nil
}

func (c *Client) conn(ctx context.Context) (*ws.Conn, error) {
	select {
	case conn := <-c.idle:
		return conn, nil
	default:
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: client closed", errUnreachable)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", errUnreachable, c.url, err)
	}
	c.log.Debug(ctx, "connected to model server", logger.String("url", c.url))
	return conn, nil
}

func (c *Client) release(conn *ws.Conn) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		closeConn(conn)
		return
	}
	select {
	case c.idle <- conn:
	default:
		closeConn(conn)
	}
}

// contextErr is ctx.Err, also reporting a deadline that has passed but not yet fired.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

func closeConn(conn *ws.Conn) {
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(closeWait))
	_ = conn.Close()
}

// encodeImage renders img as base64 JPEG.
func (c *Client) encodeImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return "", fmt.Errorf("jpeg encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
