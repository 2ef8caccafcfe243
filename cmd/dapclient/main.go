package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/dapclient/internal/breakpointmgr"
	"github.com/joestump/dapclient/internal/config"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/hub"
	"github.com/joestump/dapclient/internal/session"
	"github.com/joestump/dapclient/internal/transport"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dapclient",
		Short: "Debug Adapter Protocol client runtime",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("adapter-command", "", "adapter executable to spawn over stdio (mutually exclusive with --tcp-host)")
	f.StringSlice("adapter-args", nil, "arguments passed to the adapter command")
	f.String("adapter-cwd", ".", "working directory for the spawned adapter")
	f.String("tcp-host", "", "host of an already-listening adapter to dial instead of spawning one")
	f.Int("tcp-port", 0, "port of an already-listening adapter")
	f.String("tcp-listen-regex", "", "regex with named \"host\"/\"port\" groups to scrape a listen address from the spawned adapter's stdout before dialing it over TCP")
	f.Int("startup-timeout-seconds", 30, "seconds allowed for the initialize/launch/configurationDone sequence")
	f.Int("max-session-depth", 5, "maximum nesting depth for startDebugging-spawned child sessions")
	f.Int("sync-debounce-millis", 50, "debounce window for breakpoint resynchronization")
	f.String("client-id", "dapclient", "clientID sent in the initialize request")
	f.String("client-name", "dapclient", "clientName sent in the initialize request")
	f.String("adapter-id", "", "adapterID sent in the initialize request")
	f.String("request", "launch", "\"launch\" or \"attach\"")
	f.String("launch-config", "{}", "JSON object passed as the launch/attach request arguments")
	f.Bool("verbose", false, "enable verbose logging")
	f.Int("dashboard-port", 8080, "HTTP port serving per-session output SSE streams (0 disables it)")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("adapter_command", "adapter-command")
	bindFlag("adapter_args", "adapter-args")
	bindFlag("adapter_cwd", "adapter-cwd")
	bindFlag("tcp_host", "tcp-host")
	bindFlag("tcp_port", "tcp-port")
	bindFlag("tcp_listen_regex", "tcp-listen-regex")
	bindFlag("startup_timeout_seconds", "startup-timeout-seconds")
	bindFlag("max_session_depth", "max-session-depth")
	bindFlag("sync_debounce_millis", "sync-debounce-millis")
	bindFlag("client_id", "client-id")
	bindFlag("client_name", "client-name")
	bindFlag("adapter_id", "adapter-id")
	bindFlag("request", "request")
	bindFlag("launch_config", "launch-config")
	bindFlag("verbose", "verbose")
	bindFlag("dashboard_port", "dashboard-port")

	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}

	viper.SetEnvPrefix("DAPCLIENT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	req := viper.GetString("request")
	rawLaunch := viper.GetString("launch_config")

	var launchArgs map[string]any
	if err := json.Unmarshal([]byte(rawLaunch), &launchArgs); err != nil {
		return fmt.Errorf("parse --launch-config: %w", err)
	}

	fmt.Printf("dapclient starting\n")
	fmt.Printf("  request: %s\n", req)
	fmt.Printf("  startup timeout: %ds\n", cfg.StartupTimeoutSeconds)
	fmt.Printf("  max session depth: %d\n", cfg.MaxSessionDepth)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := dialAdapter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to adapter: %w", err)
	}

	bpMgr := breakpointmgr.New(time.Duration(cfg.SyncDebounceMillis) * time.Millisecond)
	mgr := session.NewManager()
	outputHub := hub.New()

	var dash *dashboard
	if cfg.DashboardPort != 0 {
		dash = newDashboard(outputHub, cfg.DashboardPort)
		dash.start()
		fmt.Printf("  dashboard: :%d\n\n", cfg.DashboardPort)
	}

	// Every session (root and any startDebugging-spawned child) gets its
	// own output fan-out, keyed by its registry id, and has it torn down
	// once the session reaches StateTerminated.
	mgr.OnSession(func(s *session.Session) {
		s.Hooks().On(session.EventOutput, func(payload any) hookable.CleanupFunc {
			if body, ok := payload.(events.OutputBody); ok {
				outputHub.Publish(s.ID(), body.Output)
			}
			return nil
		})
		s.Hooks().On(session.EventStateChanged, func(payload any) hookable.CleanupFunc {
			if st, ok := payload.(session.State); ok && st == session.StateTerminated {
				outputHub.Close(s.ID())
			}
			if cfg.Verbose {
				log.Printf("session %d: %v", s.ID(), payload)
			}
			return nil
		})
	})

	dial := func(dialCtx context.Context) (transport.Transport, error) {
		return dialAdapter(dialCtx, cfg)
	}

	root := session.New(mgr, bpMgr, nil, tr, session.LaunchConfig{
		Request:    req,
		Arguments:  launchArgs,
		ClientID:   cfg.ClientID,
		ClientName: cfg.ClientName,
		AdapterID:  cfg.AdapterID,
	}, time.Duration(cfg.StartupTimeoutSeconds)*time.Second, cfg.MaxSessionDepth, dial)

	startErrCh := make(chan error, 1)
	go func() { startErrCh <- root.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-startErrCh:
		if err != nil {
			return fmt.Errorf("session startup: %w", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s during startup, aborting", sig)
		cancel()
		return nil
	}

	log.Printf("session %d ready", root.ID())

	select {
	case sig := <-sigCh:
		log.Printf("received %s, disconnecting...", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := root.Disconnect(shutdownCtx, false); err != nil {
		log.Printf("disconnect: %v", err)
	}
	if dash != nil {
		if err := dash.shutdown(shutdownCtx); err != nil {
			log.Printf("dashboard shutdown: %v", err)
		}
	}

	return nil
}

func dialAdapter(ctx context.Context, cfg config.Config) (transport.Transport, error) {
	if cfg.AdapterCommand == "" {
		if cfg.TCPHost == "" {
			return nil, fmt.Errorf("one of --adapter-command or --tcp-host must be set")
		}
		return transport.DialTCP(ctx, fmt.Sprintf("%s:%d", cfg.TCPHost, cfg.TCPPort))
	}

	if cfg.TCPListenRegex == "" {
		return transport.NewStdioTransport(ctx, transport.ExecProcessRunner{}, cfg.AdapterCommand, cfg.AdapterArgs, cfg.AdapterCwd, nil)
	}

	return dialScrapedTCPAdapter(ctx, cfg)
}
