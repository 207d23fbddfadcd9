package team

// Option configures a Classifier.
type Option func(*Classifier)

// WithBands replaces the team color bands. Exactly two bands are expected.
func WithBands(home, away Band) Option {
	return func(c *Classifier) {
		if home.valid() && away.valid() {
			c.home = home
			c.away = away
		}
	}
}

// WithMinSupport sets the pixel count a band must exceed to win.
func WithMinSupport(pixels int) Option {
	return func(c *Classifier) {
		if pixels >= 0 {
			c.minSupport = pixels
		}
	}
}

// WithParallelism bounds how many candidates ClassifyAll examines at once.
func WithParallelism(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.parallelism = n
		}
	}
}
