// Package servecmder provides the serve command for running the relay gateway.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/obragco/relay/gateway"
	"github.com/obragco/relay/pkg/config"
	"github.com/obragco/relay/pkg/logger"
)

type ServeCommander struct {
	listen           string
	backendURL       string
	streamTimeout    string
	telemetryWorkers uint
	debug            bool
	logger           *zap.Logger
}

const serveLongDesc string = `Run the relay gateway.

The gateway listens for chat requests from the browser UI, forwards each
question to the obrag backend, and streams the answer back as UI events.
Non-chat API requests are relayed to the backend verbatim.

Values come from flags, RELAY_* environment variables, or the config.toml
in the .relay/ directory, in that order of precedence.`

const serveShortDesc string = "Run the relay gateway"

// serveFlagKeys lists the registry keys bound on the serve command.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagBackend,
	config.FlagStreamTimeout,
	config.FlagTelemetryWorkers,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			if err := cmder.resolve(cmd, configDir); err != nil {
				return err
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.backendURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagStreamTimeout, &cmder.streamTimeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagTelemetryWorkers, &cmder.telemetryWorkers)

	return cmd
}

// resolve merges flags, environment, and config file through viper and
// writes the effective values back onto the commander.
func (c *ServeCommander) resolve(cmd *cobra.Command, configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return err
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, serveFlagKeys)

	c.listen = v.GetString("gateway.listen")
	c.backendURL = v.GetString("backend.url")
	c.streamTimeout = v.GetString("gateway.stream_timeout")
	c.telemetryWorkers = v.GetUint("gateway.telemetry_workers")

	return nil
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	streamTimeout, err := time.ParseDuration(c.streamTimeout)
	if err != nil {
		return fmt.Errorf("parsing stream timeout %q: %w", c.streamTimeout, err)
	}

	gwConfig := gateway.Config{
		ListenAddr:       c.listen,
		BackendURL:       c.backendURL,
		StreamTimeout:    streamTimeout,
		TelemetryWorkers: c.telemetryWorkers,
	}

	g, err := gateway.New(gwConfig, c.logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	c.logger.Info("starting gateway",
		zap.String("listen", c.listen),
		zap.String("backend", c.backendURL),
		zap.Duration("stream_timeout", streamTimeout),
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := g.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return g.Close()
	}
}
