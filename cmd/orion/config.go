package main

import (
	"github.com/urfave/cli/v2"

	"github.com/dcrodman/orion/internal/core"
)

// loadConfig reads the config file and applies any overrides given on the
// command line.
func loadConfig(cc *cli.Context) (*core.Config, error) {
	config, err := core.LoadConfig(cc.String("config"))
	if err != nil {
		return nil, err
	}

	if cc.IsSet("log-level") {
		config.Logging.LogLevel = cc.String("log-level")
	}
	if cc.IsSet("save-dir") {
		config.SaveDir = cc.String("save-dir")
	}
	if cc.IsSet("resource-dir") {
		config.ResourceDir = cc.String("resource-dir")
	}
	if cc.IsSet("port") {
		config.Server.Port = cc.Int("port")
	}
	return config, nil
}
