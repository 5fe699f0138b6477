package logx

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Limited wraps a Logger with a token bucket for noisy warn/error paths.
//
// Messages denied by the bucket are counted; the next admitted message carries
// the count as "suppressed" so operators know output was thinned.
type Limited struct {
	log        Logger
	lim        *rate.Limiter
	suppressed atomic.Uint64
}

// NewLimited allows burst messages at once and refills one every `every`.
func NewLimited(log Logger, every time.Duration, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	return &Limited{log: log, lim: rate.NewLimiter(rate.Every(every), burst)}
}

func (l *Limited) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields...) }
func (l *Limited) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields...) }

// Suppressed returns the number of messages dropped since the last admitted one.
func (l *Limited) Suppressed() uint64 { return l.suppressed.Load() }

func (l *Limited) emit(level zerolog.Level, msg string, fields ...Field) {
	if l == nil || l.log.IsZero() {
		return
	}
	if !l.lim.Allow() {
		l.suppressed.Add(1)
		return
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	l.log.logSkip(level, 4, msg, fields...)
}
