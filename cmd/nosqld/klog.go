package main

import (
	"flag"
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

// klogFlags wires klog's own flag.FlagSet into urfave/cli's flag set,
// grounded on yellowstone-faithful's klog.go: klog owns a private
// flag.FlagSet, and each cli.Flag's Action forwards into it by name.
func klogFlags() []cli.Flag {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	fs.Set("logtostderr", "true")

	return []cli.Flag{
		&cli.IntFlag{
			Name:  "v",
			Usage: "log verbosity level",
			Action: func(_ *cli.Context, v int) error {
				return fs.Set("v", fmt.Sprint(v))
			},
		},
		&cli.BoolFlag{
			Name:  "logtostderr",
			Usage: "log to standard error instead of files",
			Value: true,
			Action: func(_ *cli.Context, v bool) error {
				return fs.Set("logtostderr", fmt.Sprint(v))
			},
		},
	}
}
