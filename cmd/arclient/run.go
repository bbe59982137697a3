package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arpoise/arclient/internal/config"
	"github.com/spf13/cobra"
)

// runOptions holds flags for the run command.
type runOptions struct {
	*rootOptions
	FPS   int
	Stdin bool
	Lat   float64
	Lon   float64
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization loop and scene driver",
		Long: `Run starts at the configured layer directory and keeps the placed
objects in sync with the device position until interrupted.

Commands are read from stdin, one per line:
  refresh <url> <layer> [lat lon]
  select <n>
  focus <poiId> <on|off>
  click <poiId>
  recognize <triggerIndex>
  position <lat> <lon>
  status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") {
				config.Set("sync.latitude", opts.Lat)
			}
			if cmd.Flags().Changed("lon") {
				config.Set("sync.longitude", opts.Lon)
			}
			return runClient(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.FPS, "fps", 30, "scene driver ticks per second")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", true, "read commands from stdin")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "initial device latitude")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "initial device longitude")

	return cmd
}

func runClient(cmd *cobra.Command, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error during shutdown:", err)
		}
	}()

	a.logger.Info("Starting arclient", "version", Version, "device", a.deviceID)

	if a.link != nil {
		if err := a.link.Start(); err != nil {
			a.logger.Error("Scene link unavailable", "error", err)
		}
	}
	if a.monitor != nil {
		if err := a.monitor.Start(); err != nil {
			a.logger.Error("Failed to start status monitor", "error", err)
		}
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- a.loop.Run(ctx) }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.tick(ctx, opts.FPS)
	}()
	if opts.Stdin {
		go a.readCommands(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	err = <-loopErr
	stop()
	wg.Wait()
	a.logger.Info("Stopped arclient", "reason", err)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tick drives the scene driver until ctx is done. Placement failures are
// handed to the loop.
func (a *app) tick(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := a.driver.Tick(now); err != nil {
				a.logger.Error("Tick failed", "error", err)
				a.loop.Fail(err)
			}
			if a.loop.TakeNewLayer() {
				o := a.loop.Outputs()
				a.logger.Info("New layer", "layer", o.LayerName, "title", o.HeaderTitle)
			}
		}
	}
}

// readCommands dispatches each line of r and writes the result to w as
// JSON.
func (a *app) readCommands(ctx context.Context, r io.Reader, w io.Writer) {
	enc := json.NewEncoder(w)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res, err := a.commands.DispatchLine(line)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			continue
		}
		if res != nil {
			_ = enc.Encode(res)
		}
	}
}
