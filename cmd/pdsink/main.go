// pdsink negotiates the highest power contract allowed by its policy with a
// USB PD source through a FUSB302 port controller, and logs the
// negotiation status as it changes.
//
// Configuration comes from an optional YAML file (--config or
// PDSINK_CONFIG) overridden by flags. Run with --help for the flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpe"
	"github.com/oxplot/go-pdsink/tcstatus"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}
	logger := slog.New(cfg.Log.handler(stderr))

	bus, err := openBus(cfg.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	mpn, _ := fusb302.ParseMPN(cfg.MPN) // checked by Validate
	policy, _ := cfg.policy()

	sink := tcpe.New(fusb302.New(bus, mpn))
	sink.SetLogger(logger.With("component", "tcpe"))
	sink.SetIdentity(cfg.identity())

	store := tcstatus.New()
	mgr := tcdpm.NewManager(sink, store, policy, logger.With("component", "tcdpm"))
	mgr.SetPollInterval(cfg.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "bus", cfg.Bus, "mpn", cfg.MPN, "policy", cfg.Policy)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Report(ctx, logger.With("component", "report"), cfg.ReportInterval)
	}()

	err = supervise(ctx, mgr.Run, sink, store, cfg.AbortOnFatal, logger)
	stop()
	wg.Wait()
	return err
}

// resetter is the part of the engine the supervisor needs.
type resetter interface {
	Reset()
}

// supervise runs the negotiation task until ctx is done. A fatal
// negotiation error either ends supervision (abort) or hard resets the
// engine, clears the status and runs the task again.
func supervise(ctx context.Context, task func(context.Context) error, engine resetter, store *tcstatus.Store, abort bool, log *slog.Logger) error {
	for {
		err := task(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var fe *tcdpm.FatalError
		if !errors.As(err, &fe) || abort {
			return err
		}
		log.Error("negotiation failed, resetting", "err", err)
		store.Reset()
		engine.Reset()
	}
}
