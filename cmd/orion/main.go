// The orion command runs either the game server or a headless game client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Variables from a .env file in the working directory are optional and
	// never override the real environment.
	_ = godotenv.Load()

	if err := app().Run(os.Args); err != nil {
		fmt.Printf("orion error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "orion"
	app.Usage = "turn based strategy game server and client"
	app.Commands = []*cli.Command{
		serverCommand(),
		clientCommand(),
	}
	return app
}

// commonFlags are accepted by every command. A client starts its local server
// with these flags.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the directory containing config.yaml",
			EnvVars: []string{"ORION_CONFIG"},
			Value:   "./",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Minimum level of a log required to be written",
		},
		&cli.StringFlag{
			Name:  "save-dir",
			Usage: "Directory in which save files are kept",
		},
		&cli.StringFlag{
			Name:  "resource-dir",
			Usage: "Directory containing game content",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Port the server listens on",
		},
	}
}
