package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dcrodman/orion/internal/client"
	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/core/data"
	"github.com/dcrodman/orion/internal/core/debug"
	"github.com/dcrodman/orion/internal/server"
)

// Controller is the main entrypoint for orion. It's responsible for initializing
// any shared resources (such as database and logging) and running either the
// game server or a headless client.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
}

// ClientOptions selects the game a headless client plays.
type ClientOptions struct {
	SinglePlayer bool
	// Save file to load into a single player game.
	Load string
	// Host a multiplayer game on a local server.
	Host bool
	// Address of a multiplayer game to join.
	Join string
	// With Host, start the game once this many players are in the lobby.
	Players     int
	AutoEndTurn bool
}

func (c *Controller) init() error {
	var err error
	// Set up the logger, which will be used by every component.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	debug.StartUtilities(c.logger, c.Config)
	return nil
}

// StartServer runs the game server until ctx is cancelled.
func (c *Controller) StartServer(ctx context.Context) error {
	if err := c.init(); err != nil {
		return err
	}

	db, err := data.Initialize(c.Config)
	if err != nil {
		return err
	}
	defer func() {
		if err := data.Shutdown(db); err != nil {
			c.logger.Errorf("error closing database: %s", err)
		}
	}()

	srv := server.New(c.Config, c.logger, db)
	if err := srv.Listen(); err != nil {
		return err
	}
	c.logger.Infof("server listening on %s", srv.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return core.StartMetricsServer(ctx, c.logger, c.Config.Metrics.Port)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}

// StartClient plays one game with a headless client and returns when it ends.
func (c *Controller) StartClient(ctx context.Context, opts ClientOptions) error {
	if err := c.init(); err != nil {
		return err
	}

	app := client.NewApp(c.logger, c.Config, nil)
	app.AutoEndTurn = opts.AutoEndTurn
	app.AutoStartPlayers = opts.Players

	var err error
	switch {
	case opts.Load != "":
		err = app.LoadSinglePlayerGame(ctx, opts.Load)
	case opts.SinglePlayer:
		err = app.NewSinglePlayerGame(ctx)
	case opts.Host:
		err = app.MultiplayerGame(ctx, "", true)
	case opts.Join != "":
		err = app.MultiplayerGame(ctx, opts.Join, false)
	default:
		return errors.New("no game selected")
	}
	if err != nil {
		return err
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
