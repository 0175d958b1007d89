package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/config"
	"github.com/netsimio/vnet/internal/gateway"
	"github.com/netsimio/vnet/internal/host"
	"github.com/netsimio/vnet/internal/logging"
	"github.com/netsimio/vnet/internal/rng"
	"github.com/netsimio/vnet/internal/transport"
	"github.com/netsimio/vnet/internal/vci"
	"github.com/netsimio/vnet/internal/worker"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Seed is the deterministic RNG seed every worker's VCI derives its
	// per-(src,dst)-network substreams from (internal/rng).
	Seed uint64
}

var rootCmd = &cobra.Command{
	Use:   "vnet-worker",
	Short: "vnet TCP/UDP simulation worker",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.Flags().Uint64VarP(&cmd.Seed, "seed", "s", 1, "Deterministic RNG seed")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	pool, gw, err := build(cfg, log, cmd.Seed)
	if err != nil {
		return fmt.Errorf("failed to build worker pool: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return pool.Run(ctx)
	})
	wg.Go(func() error {
		return gw.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

// build wires one worker pool and its admin gateway from cfg: one VCI per
// worker (each worker is its own vci.Dispatcher), and one host.Host per
// configured virtual host, registered onto the worker its packed address
// resolves to under addr.DefaultScheme.
func build(cfg *config.Config, log *zap.SugaredLogger, seed uint64) (*worker.Pool, *gateway.Gateway, error) {
	pool := worker.NewPool(cfg.Worker.Threads, log, cfg.Worker.GranularityMs, cfg.Worker.LookaheadMs, nil)

	topology := cfg.BuildTopology()
	tcpCfg := cfg.TCPConfig()
	tcfg := transport.DefaultConfig()
	rngSrc := rng.NewSource(seed)

	vcis := make([]*vci.VCI, cfg.Worker.Threads)
	for i, w := range pool.Workers {
		vcis[i] = vci.New(vci.Config{Scheme: addr.DefaultScheme, MyWorkerID: w.ID}, rngSrc, topology, w)
	}

	for _, hc := range cfg.Hosts {
		if int(hc.WorkerID) >= len(pool.Workers) {
			return nil, nil, fmt.Errorf("host %+v: worker id %d out of range (pool has %d workers)", hc, hc.WorkerID, len(pool.Workers))
		}
		a := addr.DefaultScheme.Pack(hc.SlaveID, hc.WorkerID, hc.NodeID)
		w := pool.Workers[hc.WorkerID]
		v := vcis[hc.WorkerID]

		h := host.New(a, hc.NodeID, tcpCfg, v, w, w, tcfg, v, topology, topology)
		w.AddHost(h)
	}

	gw := gateway.New(gateway.Config(cfg.Gateway), pool, log)
	return pool, gw, nil
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
