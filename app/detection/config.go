/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type Mode string

const (
	FirstSeen Mode = "first_seen"
	LastSeen  Mode = "last_seen"
	PeakRSSI  Mode = "peak_rssi"
)

const (
	DefaultWindow     = 3 * time.Second
	DefaultCooldown   = 5 * time.Second
	DefaultMinSamples = 3

	// minRegressionSamples is the fewest points a quadratic fit can be
	// asked to use.
	minRegressionSamples = 3
)

// ParseMode accepts the configuration spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case FirstSeen, LastSeen, PeakRSSI:
		return m, nil
	}
	return "", errors.Errorf("unknown detection mode %q", s)
}

// buffered reports whether the mode keeps a window open.
func (m Mode) buffered() bool {
	return m == LastSeen || m == PeakRSSI
}

// Config is the detection configuration of one timing point.
type Config struct {
	Mode                    Mode
	Window                  time.Duration
	Cooldown                time.Duration
	MinSamplesForRegression int
}

func DefaultConfig() Config {
	return Config{
		Mode:                    FirstSeen,
		Window:                  DefaultWindow,
		Cooldown:                DefaultCooldown,
		MinSamplesForRegression: DefaultMinSamples,
	}
}

// ConfigError rejects a configuration. Invalid values are never coerced.
type ConfigError struct {
	TimingPointID string
	Field         string
	Reason        string
}

func (e *ConfigError) Error() string {
	if e.TimingPointID == "" {
		return fmt.Sprintf("invalid detection config: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid detection config for timing point %q: %s %s",
		e.TimingPointID, e.Field, e.Reason)
}

// Validate returns a *ConfigError describing the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Mode != FirstSeen && c.Mode != LastSeen && c.Mode != PeakRSSI:
		return &ConfigError{Field: "mode", Reason: fmt.Sprintf("%q is not one of first_seen, last_seen, peak_rssi", c.Mode)}
	case c.Window <= 0:
		return &ConfigError{Field: "window", Reason: fmt.Sprintf("must be positive, got %v", c.Window)}
	case c.Cooldown < 0:
		return &ConfigError{Field: "cooldown", Reason: fmt.Sprintf("must not be negative, got %v", c.Cooldown)}
	case c.Mode == PeakRSSI && c.MinSamplesForRegression < minRegressionSamples:
		return &ConfigError{Field: "min_samples", Reason: fmt.Sprintf("must be at least %d for peak_rssi, got %d",
			minRegressionSamples, c.MinSamplesForRegression)}
	}
	return nil
}
