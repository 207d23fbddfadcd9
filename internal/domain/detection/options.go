package detection

import (
	"time"

	"github.com/okian/pitchvision/pkg/logger"
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPersonClassID sets the detector class id treated as a player.
func WithPersonClassID(id int) Option {
	return func(n *Normalizer) {
		if id >= 0 {
			n.personClass = id
		}
	}
}

// WithBallClassID sets the detector class id treated as the ball.
func WithBallClassID(id int) Option {
	return func(n *Normalizer) {
		if id >= 0 {
			n.ballClass = id
		}
	}
}

// WithTimeout bounds every detector call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(n *Normalizer) {
		if d >= 0 {
			n.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}
