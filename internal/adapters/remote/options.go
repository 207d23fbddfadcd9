package remote

import (
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/okian/pitchvision/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithPoolSize sets how many requests may be in flight at once.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithTimeout bounds each request when the caller's context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithJPEGQuality sets the quality used to encode frames.
func WithJPEGQuality(q int) Option {
	return func(c *Client) {
		if q >= 1 && q <= 100 {
			c.jpegQuality = q
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *ws.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
