package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"github.com/joestump/dapclient/internal/config"
	"github.com/joestump/dapclient/internal/transport"
)

// dialScrapedTCPAdapter spawns an adapter that prints its own listen
// address on stdout (rather than speaking DAP over stdio) and dials the
// TCP address it announces there.
func dialScrapedTCPAdapter(ctx context.Context, cfg config.Config) (transport.Transport, error) {
	listenRegex, err := regexp.Compile(cfg.TCPListenRegex)
	if err != nil {
		return nil, fmt.Errorf("parse --tcp-listen-regex: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.AdapterCommand, cfg.AdapterArgs...)
	cmd.Dir = cfg.AdapterCwd
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe adapter stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn adapter: %w", err)
	}

	addr, err := transport.WaitForListenAddress(ctx, bufio.NewScanner(stdout), listenRegex)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return transport.DialTCP(ctx, addr)
}
