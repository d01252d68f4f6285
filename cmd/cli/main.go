// Package main is the mmec-fab command line tool. It runs pick and place or roll jobs from
// a frames file against an ABB controller reachable through rosbridge.
package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	mmecfab "mmec_fab"
)

const (
	// Flags.
	flagURL       = "url"
	flagNamespace = "namespace"
	flagTimeout   = "timeout"
	flagOffset    = "offset"
	flagSpeed     = "speed"

	defaultJobFile = "pp_frames.json"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("mmec-fab"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	app := &cli.App{
		Name:  "mmec-fab",
		Usage: "drive an ABB arm through pick and place jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagURL,
				Usage: "rosbridge websocket url",
				Value: mmecfab.DefaultURL,
			},
			&cli.StringFlag{
				Name:  flagNamespace,
				Usage: "RRC robot namespace",
				Value: mmecfab.DefaultNamespace,
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Usage: "how long to wait for the controller to answer a ping",
				Value: mmecfab.DefaultConnectionTimeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "pick-place",
				Usage:     "pick every part in the job file and place it at its target",
				ArgsUsage: "[job.json]",
				Action: func(c *cli.Context) error {
					job, err := loadJob(c, logger)
					if err != nil {
						return err
					}
					return mmecfab.WithRobotClient(c.Context, configFromFlags(c), logger, func(rc *mmecfab.RobotClient) error {
						return rc.RunPickPlace(c.Context, job, nil)
					})
				},
			},
			{
				Name:      "roll",
				Usage:     "visit every roll frame in the job file",
				ArgsUsage: "[job.json]",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  flagOffset,
						Usage: "approach distance along the frame normal in mm",
						Value: mmecfab.DefaultPickPlaceOptions().OffsetDistance,
					},
					&cli.Float64Flag{
						Name:  flagSpeed,
						Usage: "TCP speed in mm/s",
						Value: mmecfab.DefaultRollSpeed,
					},
				},
				Action: func(c *cli.Context) error {
					job, err := loadJob(c, logger)
					if err != nil {
						return err
					}
					return mmecfab.WithRobotClient(c.Context, configFromFlags(c), logger, func(rc *mmecfab.RobotClient) error {
						return rc.RunRoll(c.Context, job, c.Float64(flagOffset), c.Float64(flagSpeed), mmecfab.DefaultRollZone)
					})
				},
			},
			{
				Name:  "ping",
				Usage: "check that the controller answers",
				Action: func(c *cli.Context) error {
					cfg := configFromFlags(c)
					return mmecfab.WithRobotClient(c.Context, cfg, logger, func(rc *mmecfab.RobotClient) error {
						start := time.Now()
						if err := rc.CheckConnectionController(c.Context, 0); err != nil {
							return err
						}
						logger.Infof("Controller at %s%s answered in %s", cfg.URL, cfg.Namespace, time.Since(start))
						return nil
					})
				},
			},
		},
	}
	return app.RunContext(ctx, args)
}

func configFromFlags(c *cli.Context) *mmecfab.Config {
	return &mmecfab.Config{
		URL:        c.String(flagURL),
		Namespace:  c.String(flagNamespace),
		TimeoutSec: c.Duration(flagTimeout).Seconds(),
	}
}

func loadJob(c *cli.Context, logger logging.Logger) (*mmecfab.Job, error) {
	path := c.Args().First()
	if path == "" {
		path = defaultJobFile
		logger.Infof("No frames file given, using %s", path)
	}
	return mmecfab.LoadJob(path, logger)
}
