package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to quality config file",
		EnvVars: []string{"QUALITY_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "overrides logging.level from the config file",
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "debug logging with the development encoder",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "qualityctl",
		Usage: "inspect and exercise the adaptive quality controller",
		Flags: baseFlags,
		Commands: []*cli.Command{
			{
				Name:   "replay",
				Usage:  "replay a YAML metrics trace through a controller session",
				Action: replayTrace,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "trace",
						Usage:    "path to the trace `file`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "controller mode (level|bitrate); defaults to the trace's, then the config's",
					},
				},
			},
			{
				Name:   "munge-sdp",
				Usage:  "apply the codec-preference transform to an SDP",
				Action: mungeSDP,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "in",
						Usage: "SDP `file` to read, - for stdin",
						Value: "-",
					},
					&cli.Int64Flag{
						Name:  "max-bitrate",
						Usage: "video bandwidth to advertise in bps; defaults to codec.max_video_bitrate",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "print the resolved configuration",
				Action: printConfig,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
