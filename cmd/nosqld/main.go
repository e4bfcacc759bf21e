// Command nosqld runs the embedded, networked key-value store: a serve
// subcommand for the wire listener, a cli subcommand for an interactive
// client, bulkload for streaming batch loads, and inspect/snapshot for
// offline diagnostics and manual backup/restore.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/nosqld/nosqld/internal/bulkload"
	"github.com/nosqld/nosqld/internal/config"
	"github.com/nosqld/nosqld/internal/engine"
	"github.com/nosqld/nosqld/internal/inspect"
	"github.com/nosqld/nosqld/internal/repl"
	"github.com/nosqld/nosqld/internal/server"
	"github.com/nosqld/nosqld/internal/snapshot"
)

func main() {
	defer klog.Flush()

	app := &cli.App{
		Name:  "nosqld",
		Usage: "an embedded, networked in-memory key-value store",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a JSONC config file"},
		}, klogFlags()...),
		Commands: []*cli.Command{
			serveCommand,
			cliCommand,
			bulkloadCommand,
			inspectCommand,
			snapshotCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "nosqld: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	overrides := config.Config{}
	set := config.CLISet{}

	if addr := c.String("addr"); addr != "" {
		overrides.Addr = addr
		set.Addr = true
	}
	if addr := c.String("metrics-addr"); addr != "" {
		overrides.MetricsAddr = addr
		set.MetricsAddr = true
	}
	if v := c.Uint("total-memory-size"); v != 0 {
		overrides.TotalMemorySize = uint32(v)
		set.TotalMemorySize = true
	}
	if v := c.Uint("index-size"); v != 0 {
		overrides.IndexSize = uint32(v)
		set.IndexSize = true
	}
	if v := c.Int("cache-size"); v != 0 {
		overrides.CacheSize = v
		set.CacheSize = true
	}
	if p := c.String("snapshot-path"); p != "" {
		overrides.SnapshotPath = p
		set.SnapshotPath = true
	}
	if c.IsSet("snapshot-compress") {
		overrides.SnapshotCompress = c.Bool("snapshot-compress")
		set.SnapshotCompress = true
	}

	return config.Load(c.String("config"), os.Environ(), overrides, set)
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the wire protocol and metrics listeners",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "host:port for the wire listener"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "host:port for the Prometheus listener"},
		&cli.UintFlag{Name: "total-memory-size", Usage: "arena size in bytes"},
		&cli.UintFlag{Name: "index-size", Usage: "index region size in bytes"},
		&cli.IntFlag{Name: "cache-size", Usage: "direct-mapped cache slot count"},
		&cli.StringFlag{Name: "snapshot-path", Usage: "snapshot file path kept in the config (backup/restore requests name their own path)"},
		&cli.BoolFlag{Name: "snapshot-compress", Usage: "LZ4-compress snapshots"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		eng := engine.NewEngine(engine.Options{
			TotalMemorySize: cfg.TotalMemorySize,
			IndexSize:       cfg.IndexSize,
			CacheSize:       cfg.CacheSize,
		}, 256)
		defer eng.Close()

		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("nosqld: listen on %s: %w", cfg.Addr, err)
		}
		klog.Infof("wire listener on %s", ln.Addr())

		snap := snapshot.Disk{}
		srv := server.New(ln, eng, snap, cfg.SnapshotCompress)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if cfg.MetricsAddr != "" {
			go func() {
				mux := newMetricsMux()
				klog.Infof("metrics listener on %s", cfg.MetricsAddr)
				if err := listenAndServeMetrics(ctx, cfg.MetricsAddr, mux); err != nil {
					klog.Errorf("metrics listener stopped: %v", err)
				}
			}()
		}

		return srv.Serve(ctx)
	},
}

var cliCommand = &cli.Command{
	Name:  "cli",
	Usage: "interactive REPL client",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "127.0.0.1:17878", Usage: "host:port to connect to"},
	},
	Action: func(c *cli.Context) error {
		home, _ := os.UserHomeDir()
		historyPath := ""
		if home != "" {
			historyPath = filepath.Join(home, ".nosqld_history")
		}
		client := repl.Client{Addr: c.String("addr")}
		return repl.Run(client, historyPath)
	},
}

var bulkloadCommand = &cli.Command{
	Name:      "bulkload",
	Usage:     "stream key\\tvalue lines from a file (or stdin) into a running server",
	ArgsUsage: "[file]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "127.0.0.1:17878", Usage: "host:port to connect to"},
	},
	Action: func(c *cli.Context) error {
		in := os.Stdin
		if c.NArg() > 0 {
			f, err := os.Open(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("nosqld bulkload: %w", err)
			}
			defer f.Close()
			in = f
		}

		client := repl.Client{Addr: c.String("addr")}
		stats, err := bulkload.Load(client, in, os.Stderr)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d, duplicates %d, failed %d (of %d lines)\n",
			stats.Loaded, stats.Duplicate, stats.Failed, stats.Lines)
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "run diagnostics against a fresh in-process arena of the given size",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "total-memory-size", Value: uint64(config.Default().TotalMemorySize)},
		&cli.UintFlag{Name: "index-size", Value: uint64(config.Default().IndexSize)},
		&cli.IntFlag{Name: "cache-size", Value: config.Default().CacheSize},
		&cli.StringFlag{Name: "snapshot-path", Usage: "load an existing snapshot before reporting"},
	},
	Action: func(c *cli.Context) error {
		eng := engine.NewEngine(engine.Options{
			TotalMemorySize: uint32(c.Uint("total-memory-size")),
			IndexSize:       uint32(c.Uint("index-size")),
			CacheSize:       c.Int("cache-size"),
		}, 8)
		defer eng.Close()

		if p := c.String("snapshot-path"); p != "" {
			buf, err := (snapshot.Disk{}).Load(p)
			if err != nil {
				return fmt.Errorf("nosqld inspect: %w", err)
			}
			if err := eng.LoadSnapshot(buf); err != nil {
				return fmt.Errorf("nosqld inspect: %w", err)
			}
		}

		return inspect.Report(eng, os.Stdout)
	},
}

var snapshotCommand = &cli.Command{
	Name:  "snapshot",
	Usage: "manually trigger backup/restore against a running server",
	Subcommands: []*cli.Command{
		{
			Name:      "backup",
			ArgsUsage: "<path>",
			Flags:     []cli.Flag{&cli.StringFlag{Name: "addr", Value: "127.0.0.1:17878"}},
			Action: func(c *cli.Context) error {
				return runSnapshotOp(c, "backup")
			},
		},
		{
			Name:      "restore",
			ArgsUsage: "<path>",
			Flags:     []cli.Flag{&cli.StringFlag{Name: "addr", Value: "127.0.0.1:17878"}},
			Action: func(c *cli.Context) error {
				return runSnapshotOp(c, "restore")
			},
		},
	},
}

func runSnapshotOp(c *cli.Context, op string) error {
	if c.NArg() != 1 {
		return fmt.Errorf("nosqld snapshot %s: expected exactly one path argument", op)
	}
	client := repl.Client{Addr: c.String("addr")}
	code, body, err := client.Do("POST", "snapshot/"+op, c.Args().Get(0))
	if err != nil {
		return err
	}
	if code != 200 {
		return fmt.Errorf("nosqld snapshot %s: server returned %d %s", op, code, body)
	}
	fmt.Println("ok")
	return nil
}
