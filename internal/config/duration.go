package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Duration is a config duration: a Go duration ("1m30s") or a bare number of
// whole seconds ("30"). Empty means unset.
type Duration string

// Parse returns the duration; key names the config field in errors.
func (d Duration) Parse(key string) (time.Duration, error) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s: duration must be >= 0", key)
		}
		if secs > math.MaxInt64/int64(time.Second) {
			return 0, fmt.Errorf("%s: duration %q is too large", key, s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	out, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use \"30s\", \"1m30s\" or whole seconds)", key, string(d))
	}
	if out < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return out, nil
}

// Or is Parse with def for an unset or zero value.
func (d Duration) Or(key string, def time.Duration) (time.Duration, error) {
	v, err := d.Parse(key)
	if err != nil || v > 0 {
		return v, err
	}
	return def, nil
}
