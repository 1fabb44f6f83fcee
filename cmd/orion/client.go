package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dcrodman/orion/internal"
)

func clientCommand() *cli.Command {
	return &cli.Command{
		Name:        "client",
		Usage:       "headless orion client",
		Description: "Plays one game without a user interface, mostly useful for testing servers.",
		Action:      runClient,
		Flags: append(commonFlags(),
			&cli.BoolFlag{
				Name:  "single-player",
				Usage: "Start a new single player game",
			},
			&cli.StringFlag{
				Name:  "load",
				Usage: "Load a single player game from a save file",
			},
			&cli.BoolFlag{
				Name:  "host",
				Usage: "Host a multiplayer game on a local server",
			},
			&cli.IntFlag{
				Name:  "players",
				Usage: "Start a hosted game once this many players have joined",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "join",
				Usage: "Join the multiplayer game at this address",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Player name",
			},
			&cli.StringFlag{
				Name:  "empire",
				Usage: "Empire name",
			},
			&cli.BoolFlag{
				Name:  "auto-end-turn",
				Usage: "End every turn as soon as it begins",
				Value: true,
			},
		),
	}
}

func runClient(cc *cli.Context) error {
	config, err := loadConfig(cc)
	if err != nil {
		return err
	}
	if cc.IsSet("name") {
		config.Client.PlayerName = cc.String("name")
	}
	if cc.IsSet("empire") {
		config.Client.EmpireName = cc.String("empire")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := &internal.Controller{Config: config}
	return controller.StartClient(ctx, internal.ClientOptions{
		SinglePlayer: cc.Bool("single-player"),
		Load:         cc.String("load"),
		Host:         cc.Bool("host"),
		Players:      cc.Int("players"),
		Join:         cc.String("join"),
		AutoEndTurn:  cc.Bool("auto-end-turn"),
	})
}
