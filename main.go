/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/config"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/routes"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/station"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/healthcheck"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/jsonrpc"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrpsim"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	serviceKey        = "timing-engine"
	heartbeatInterval = 30 * time.Second
	healthBuffer      = 64
	shutdownTimeout   = 5 * time.Second
)

var errUnhealthy = errors.New("service is not healthy")

func main() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})

	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		log.WithFields(log.Fields{
			"Method": "main",
			"Error":  err.Error(),
		}).Error("command failed")
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           serviceKey,
		Short:         "RFID timing engine for LLRP readers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCommand(out),
		newSimulateCommand(),
		newHealthcheckCommand(),
	)
	return root
}

func newRunCommand(out io.Writer) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured readers and emit crossing events",
		Long: `Connect to every reader named by the configured timing points, detect
crossings and write them to stdout as JSON-RPC notifications, one per line.
Reader health changes and a periodic heartbeat are written the same way.
The status API listens on the configured port until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStation(ctx, configPath, out)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML configuration")
	return cmd
}

func newSimulateCommand() *cobra.Command {
	simCfg := llrpsim.DefaultConfig()
	simCfg.Addr = ":5084"
	var tags string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated LLRP reader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tags != "" {
				simCfg.Tags = strings.Split(tags, ",")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return simulate(ctx, simCfg)
		},
	}
	cmd.Flags().StringVar(&simCfg.Addr, "addr", simCfg.Addr, "address to listen on")
	cmd.Flags().DurationVar(&simCfg.ReadInterval, "interval", simCfg.ReadInterval, "time between simulated reads, 0 to disable")
	cmd.Flags().StringVar(&tags, "tags", "", "comma separated EPCs in hex")
	cmd.Flags().Int8Var(&simCfg.RSSIMin, "rssi-min", simCfg.RSSIMin, "weakest simulated RSSI in dBm")
	cmd.Flags().Int8Var(&simCfg.RSSIMax, "rssi-max", simCfg.RSSIMax, "strongest simulated RSSI in dBm")
	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Exit non-zero unless the status API answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if healthcheck.Healthcheck(port) != 0 {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "port of the status API")
	return cmd
}

func simulate(ctx context.Context, cfg llrpsim.Config) error {
	sim, err := llrpsim.Listen(cfg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"Method": "simulate",
		"Addr":   sim.Addr().String(),
		"Tags":   len(cfg.Tags),
	}).Info("simulated reader listening")

	return sim.Serve(ctx)
}

// runStation blocks until ctx is done, then shuts down the web server and the
// station in that order.
func runStation(ctx context.Context, configPath string, out io.Writer) error {
	mConfigurationError := metrics.GetOrRegisterCounter("Timing.Main.Configuration-Error", nil)
	mNotificationError := metrics.GetOrRegisterCounter("Timing.Main.Notification-Error", nil)

	if err := config.InitConfig(configPath); err != nil {
		mConfigurationError.Inc(1)
		return errors.Wrap(err, "unable to load config variables")
	}
	setLoggingLevel(config.AppConfig.LoggingLevel)

	cfg, err := config.StationConfig()
	if err != nil {
		mConfigurationError.Inc(1)
		return err
	}
	cfg.Registry = metrics.DefaultRegistry

	st, err := station.New(cfg)
	if err != nil {
		mConfigurationError.Inc(1)
		return err
	}

	log.WithFields(log.Fields{
		"Method":       "main",
		"Action":       "Start",
		"TimingPoints": len(cfg.TimingPoints),
	}).Infof("Starting %s...", config.AppConfig.ServiceName)

	// subscribe before Start so the first states are not missed
	writer := jsonrpc.NewWriter(out, mNotificationError)
	crossings, _ := st.Crossings(config.AppConfig.QueueSize)
	health, _ := st.Health(healthBuffer)

	// readers outlive ctx so Stop can close their sessions gracefully
	if err := st.Start(context.Background()); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ce := range crossings {
			errorHandler("error writing crossing event", writer.Write(jsonrpc.NewCrossingEvent(ce)), nil)
		}
	}()
	go func() {
		defer wg.Done()
		for status := range health {
			errorHandler("error writing reader status", writer.Write(jsonrpc.NewReaderStatus(status)), nil)
		}
	}()
	go sendHeartbeats(ctx, writer, st, heartbeatInterval)

	server := &http.Server{
		Addr:           ":" + config.AppConfig.Port,
		Handler:        routes.NewRouter(st, routes.Options{Registry: metrics.DefaultRegistry}),
		ReadTimeout:    time.Duration(config.AppConfig.ServerReadTimeOutSeconds) * time.Second,
		WriteTimeout:   time.Duration(config.AppConfig.ServerWriteTimeOutSeconds) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	serveUntilDone(ctx, server, config.AppConfig.ServiceName)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = st.Stop(stopCtx)
	errorHandler("error stopping station", err, nil)

	// Stop closed both subscriptions, so the writers drain and exit
	wg.Wait()
	log.WithFields(log.Fields{
		"Method": "main",
		"Action": "Stop",
	}).Infof("%s stopped", config.AppConfig.ServiceName)
	return err
}

// serveUntilDone runs server until ctx is done, then attempts a graceful
// shutdown before closing it hard.
func serveUntilDone(ctx context.Context, server *http.Server, serviceName string) {
	// We want to report the listener is closed.
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		log.Infof("%s running!", serviceName)
		log.Infof("Listener closed : %v", server.ListenAndServe())
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Attempt the graceful shutdown by closing the listener and
	// completing all inflight requests.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithFields(log.Fields{
			"Method":  "main",
			"Action":  "shutdown",
			"Timeout": shutdownTimeout,
			"Message": err.Error(),
		}).Error("Graceful shutdown did not complete")

		if err := server.Close(); err != nil {
			log.WithFields(log.Fields{
				"Method":  "main",
				"Action":  "shutdown",
				"Message": err.Error(),
			}).Error("Error killing server")
		}
	}

	wg.Wait()
}

type readerLister interface {
	ReaderStatuses() []reader.Status
}

func sendHeartbeats(ctx context.Context, writer *jsonrpc.Writer, readers readerLister, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			errorHandler("error writing heartbeat", writer.Write(newHeartbeat(readers.ReaderStatuses(), now)), nil)
		}
	}
}

func newHeartbeat(statuses []reader.Status, now time.Time) *jsonrpc.Heartbeat {
	params := jsonrpc.HeartbeatParams{
		SentOn:    now.UnixNano() / int64(time.Millisecond),
		StationID: config.AppConfig.ServiceName,
		Readers:   len(statuses),
	}
	for _, s := range statuses {
		if s.State == reader.Streaming {
			params.Streaming++
		}
	}
	return jsonrpc.NewHeartbeat(params)
}
