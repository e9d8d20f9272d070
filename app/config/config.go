/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/station"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no path is given.
	DefaultPath = "res/configuration.yaml"

	maxServerReadTimeoutSeconds  = 1800
	maxServerWriteTimeoutSeconds = 1800
	maxKeepaliveSeconds          = 600
	maxBackoffSeconds            = 300
)

type (
	variables struct {
		ServiceName  string `yaml:"serviceName"`
		LoggingLevel string `yaml:"loggingLevel"`
		Port         string `yaml:"port"`

		ServerReadTimeOutSeconds  int `yaml:"serverReadTimeOutSeconds"`
		ServerWriteTimeOutSeconds int `yaml:"serverWriteTimeOutSeconds"`

		QueueSize         int `yaml:"queueSize"`
		KeepaliveSeconds  int `yaml:"keepaliveSeconds"`
		MinBackoffSeconds int `yaml:"minBackoffSeconds"`
		MaxBackoffSeconds int `yaml:"maxBackoffSeconds"`

		TimingPoints []TimingPoint `yaml:"timingPoints"`
	}

	// TimingPoint is one entry of timingPoints. Absent numeric fields take
	// the detection defaults.
	TimingPoint struct {
		ID              string   `yaml:"timing_point_id" json:"timing_point_id,omitempty"`
		ReaderHost      string   `yaml:"reader_host" json:"reader_host,omitempty"`
		ReaderPort      int      `yaml:"reader_port" json:"reader_port,omitempty"`
		DetectionMode   string   `yaml:"detection_mode" json:"detection_mode,omitempty"`
		WindowSeconds   *float64 `yaml:"window_seconds" json:"window_seconds,omitempty"`
		CooldownSeconds *float64 `yaml:"cooldown_seconds" json:"cooldown_seconds,omitempty"`
		MinSamples      int      `yaml:"min_samples" json:"min_samples,omitempty"`
		Antennas        []int    `yaml:"antennas" json:"antennas,omitempty"`
	}
)

// AppConfig exports all config variables
var AppConfig variables

// InitConfig loads application variables from the YAML file at path.
// LOGGING_LEVEL and PORT in the environment override the file.
func InitConfig(path string) error {
	AppConfig = variables{}
	if path == "" {
		path = DefaultPath
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "Unable to load config variables: %s", err.Error())
	}
	return load(data)
}

func load(data []byte) error {
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return errors.Wrapf(err, "Unable to parse config variables: %s", err.Error())
	}

	if v, ok := os.LookupEnv("LOGGING_LEVEL"); ok {
		AppConfig.LoggingLevel = v
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		AppConfig.Port = v
	}

	if AppConfig.ServiceName == "" {
		AppConfig.ServiceName = "timing-engine"
	}
	if AppConfig.LoggingLevel == "" {
		AppConfig.LoggingLevel = "info"
	}
	if AppConfig.Port == "" {
		AppConfig.Port = "8080"
	}
	if _, err := strconv.Atoi(AppConfig.Port); err != nil {
		return errors.Wrapf(err, "Unable to parse Port: %s", err.Error())
	}

	var err error
	if AppConfig.ServerReadTimeOutSeconds, err = bounded("serverReadTimeOutSeconds",
		AppConfig.ServerReadTimeOutSeconds, 900, maxServerReadTimeoutSeconds); err != nil {
		return err
	}
	if AppConfig.ServerWriteTimeOutSeconds, err = bounded("serverWriteTimeOutSeconds",
		AppConfig.ServerWriteTimeOutSeconds, 900, maxServerWriteTimeoutSeconds); err != nil {
		return err
	}
	if AppConfig.KeepaliveSeconds, err = bounded("keepaliveSeconds",
		AppConfig.KeepaliveSeconds, int(reader.DefaultKeepaliveInterval/time.Second), maxKeepaliveSeconds); err != nil {
		return err
	}
	if AppConfig.MinBackoffSeconds, err = bounded("minBackoffSeconds",
		AppConfig.MinBackoffSeconds, int(reader.DefaultMinBackoff/time.Second), maxBackoffSeconds); err != nil {
		return err
	}
	if AppConfig.MaxBackoffSeconds, err = bounded("maxBackoffSeconds",
		AppConfig.MaxBackoffSeconds, int(reader.DefaultMaxBackoff/time.Second), maxBackoffSeconds); err != nil {
		return err
	}
	if AppConfig.MaxBackoffSeconds < AppConfig.MinBackoffSeconds {
		return errors.New("MaxBackoffSeconds cannot be lesser than MinBackoffSeconds")
	}

	if AppConfig.QueueSize < 0 {
		return errors.New("QueueSize cannot be negative")
	}
	if AppConfig.QueueSize == 0 {
		AppConfig.QueueSize = detection.DefaultQueueSize
	}

	if len(AppConfig.TimingPoints) == 0 {
		return errors.New("at least one timing point must be configured")
	}
	return nil
}

// bounded defaults an unset value, rejects a negative one and clamps one
// above max.
func bounded(name string, value, def, max int) (int, error) {
	switch {
	case value == 0:
		return def, nil
	case value < 0:
		return 0, errors.Errorf("%s cannot be lesser than 1", name)
	case value > max:
		log.Debugf("%s value %d exceeds the max value allowed, set to max value %d", name, value, max)
		return max, nil
	}
	return value, nil
}

// Detection converts the entry to a detection config, applying defaults.
func (tp TimingPoint) Detection() (detection.Config, error) {
	cfg := detection.DefaultConfig()
	if tp.DetectionMode != "" {
		mode, err := detection.ParseMode(tp.DetectionMode)
		if err != nil {
			return cfg, &detection.ConfigError{TimingPointID: tp.ID, Field: "detection_mode", Reason: err.Error()}
		}
		cfg.Mode = mode
	}
	if tp.WindowSeconds != nil {
		cfg.Window = seconds(*tp.WindowSeconds)
	}
	if tp.CooldownSeconds != nil {
		cfg.Cooldown = seconds(*tp.CooldownSeconds)
	}
	if tp.MinSamples != 0 {
		cfg.MinSamplesForRegression = tp.MinSamples
	}
	if err := cfg.Validate(); err != nil {
		if ce, ok := err.(*detection.ConfigError); ok {
			ce.TimingPointID = tp.ID
		}
		return cfg, err
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// StationConfig builds the station configuration from AppConfig.
func StationConfig() (station.Config, error) {
	cfg := station.Config{
		QueueSize: AppConfig.QueueSize,
		ReaderDefaults: reader.Config{
			KeepaliveInterval: time.Duration(AppConfig.KeepaliveSeconds) * time.Second,
			MinBackoff:        time.Duration(AppConfig.MinBackoffSeconds) * time.Second,
			MaxBackoff:        time.Duration(AppConfig.MaxBackoffSeconds) * time.Second,
		},
	}
	for _, tp := range AppConfig.TimingPoints {
		det, err := tp.Detection()
		if err != nil {
			return cfg, err
		}
		cfg.TimingPoints = append(cfg.TimingPoints, station.TimingPoint{
			ID:         tp.ID,
			ReaderHost: tp.ReaderHost,
			ReaderPort: tp.ReaderPort,
			Antennas:   tp.Antennas,
			Detection:  det,
		})
	}
	return cfg, nil
}

// ParseAntennas reads a comma separated antenna list such as "1,2,4".
func ParseAntennas(s string) ([]int, error) {
	var antennas []int
	// an empty string is valid and means every antenna
	if strings.TrimSpace(s) == "" {
		return antennas, nil
	}

	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "Antenna %q is not a valid integer", part)
		}
		if id < 1 || id > 65535 {
			return nil, errors.Errorf("Antenna %d is out of range", id)
		}
		antennas = append(antennas, id)
	}
	return antennas, nil
}
