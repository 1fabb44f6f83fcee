// Package client implements the player side of a game session: connecting to
// a server, following the match through its phases and autosaving.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/autosave"
	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/core/debug"
	"github.com/dcrodman/orion/internal/message"
	"github.com/dcrodman/orion/internal/transport"
)

// ErrNotConnected is returned by operations that need a server connection.
var ErrNotConnected = errors.New("client: not connected to a server")

const chunkBacklog = 64

// Notifier shows messages to the user.
type Notifier interface {
	Notify(text string)
}

// LogNotifier writes user notifications to a logger.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Notify(text string) { n.Logger.Warn(text) }

// App is a human player's client. All of its methods must be called from the
// goroutine running the poll loop.
type App struct {
	Logger   *logrus.Logger
	Config   *core.Config
	Notifier Notifier
	Dumper   *debug.MessageLogger

	// AutoEndTurn submits the turn as soon as it begins. Used by the headless client.
	AutoEndTurn bool
	// AutoStartPlayers makes a multiplayer host start the match once this
	// many players are in the lobby. Zero disables it.
	AutoStartPlayers int

	fsm    *Machine
	saves  *autosave.Policy
	server *ServerProcess

	conn       *transport.Conn
	connected  bool
	chunks     chan transport.Chunk
	stopReader context.CancelFunc
	readErr    error
	framer     message.Framer
	inbox      []message.Message

	playerID     message.PlayerID
	host         bool
	singlePlayer bool
	empire       int
	empireName   string
	turn         int
	lobby        []message.LobbyPlayer
	startSent    bool
	ended        int
}

func NewApp(logger *logrus.Logger, cfg *core.Config, notifier Notifier) *App {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	a := &App{
		Logger:   logger,
		Config:   cfg,
		Notifier: notifier,
		Dumper:   &debug.MessageLogger{Logger: logger, Enabled: cfg.Debugging.PacketLoggingEnabled},
		empire:   -1,
	}
	a.fsm = NewMachine(logger, a)
	a.saves = autosave.NewPolicy(logger, cfg.Autosave, cfg.SaveDir, a)
	return a
}

func (a *App) Phase() Phase                 { return a.fsm.Phase() }
func (a *App) PlayerID() message.PlayerID   { return a.playerID }
func (a *App) Host() bool                   { return a.host }
func (a *App) Turn() int                    { return a.turn }
func (a *App) Connected() bool              { return a.connected }
func (a *App) Lobby() []message.LobbyPlayer { return a.lobby }

func (a *App) localServerAddress() string {
	return fmt.Sprintf("localhost:%d", a.Config.Server.Port)
}

// NewSinglePlayerGame starts a local server and hosts a new single player game on it.
func (a *App) NewSinglePlayerGame(ctx context.Context) error {
	return a.startSinglePlayer(ctx, "")
}

// LoadSinglePlayerGame ends any running game and hosts a saved one.
func (a *App) LoadSinglePlayerGame(ctx context.Context, filename string) error {
	if a.fsm.Phase() != Intro {
		a.EndGame()
	}
	return a.startSinglePlayer(ctx, filename)
}

func (a *App) startSinglePlayer(ctx context.Context, filename string) error {
	if err := a.connect(ctx, a.localServerAddress(), true); err != nil {
		return err
	}
	a.singlePlayer = true
	err := a.send(message.HostGameRequest{
		PlayerName: a.Config.Client.PlayerName,
		EmpireName: a.Config.Client.EmpireName,
		Filename:   filename,
	})
	if err != nil {
		a.abort()
		return err
	}
	a.fsm.Process(HostSPGameRequested{Loaded: filename != ""})
	return nil
}

// MultiplayerGame hosts a game on a locally started server or joins the game
// at address.
func (a *App) MultiplayerGame(ctx context.Context, address string, host bool) error {
	if host {
		address = a.localServerAddress()
	}
	if err := a.connect(ctx, address, host); err != nil {
		return err
	}
	if host && a.server != nil {
		// A hosted server outlives the client that started it.
		a.server.Free()
	}
	a.singlePlayer = false

	var err error
	if host {
		err = a.send(message.HostGameRequest{
			Multiplayer: true,
			PlayerName:  a.Config.Client.PlayerName,
			EmpireName:  a.Config.Client.EmpireName,
		})
	} else {
		err = a.send(message.JoinGameRequest{
			PlayerName: a.Config.Client.PlayerName,
			EmpireName: a.Config.Client.EmpireName,
		})
	}
	if err != nil {
		a.abort()
		return err
	}

	if host {
		a.fsm.Process(HostMPGameRequested{})
	} else {
		a.fsm.Process(JoinMPGameRequested{})
	}
	return nil
}

// connect starts a server if asked to and connects to address within the
// configured timeout. On failure the started server is killed and the user told.
func (a *App) connect(ctx context.Context, address string, spawn bool) error {
	if a.connected {
		return errors.New("client: already connected")
	}
	a.disconnect()
	if spawn && !a.Config.Client.ExternalServer {
		p, err := StartServer(a.Logger, a.Config.Client.ServerBinary, ServerArgs(a.Config))
		if err != nil {
			a.Notifier.Notify("Unable to start the server.")
			return err
		}
		a.server = p
	}

	conn, err := transport.Dial(ctx, address, a.Config.Client.ConnectTimeout)
	if err != nil {
		a.Logger.Errorf("error connecting to server at %s: %s", address, err)
		a.killServer()
		a.resetIdentity()
		a.Notifier.Notify(fmt.Sprintf("Unable to connect to the server at %s.", address))
		return err
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	a.conn = conn
	a.connected = true
	a.stopReader = cancel
	a.chunks = make(chan transport.Chunk, chunkBacklog)
	a.readErr = nil
	a.framer = message.Framer{}
	a.inbox = nil
	go conn.ReadLoop(readerCtx, a.chunks)

	a.Logger.Infof("connected to server at %s", address)
	return nil
}

// abort undoes a connection whose setup failed before any session began.
func (a *App) abort() {
	a.disconnect()
	a.killServer()
	a.resetIdentity()
}

// Poll runs one iteration of the client loop: it reads whatever the server
// sent, hands complete messages to the state machine and notices a lost connection.
func (a *App) Poll() {
	if a.connected {
		alive := a.conn.Alive()
		a.receive()
		// Whatever the server sent before hanging up is handled first.
		a.dispatchInbox()
		if a.connected && (!alive || a.readErr != nil) {
			a.Logger.Info("lost connection to server")
			a.connected = false
			a.fsm.Post(Disconnection{})
		}
	}
	a.dispatchInbox()
	a.fsm.Drain()

	if a.AutoStartPlayers > 0 && a.host && !a.singlePlayer && !a.startSent &&
		a.fsm.Phase().waiting() && len(a.lobby) >= a.AutoStartPlayers {
		if err := a.StartMultiplayerGame(); err != nil {
			a.Logger.Warnf("error starting game: %s", err)
		}
		a.startSent = true
	}
	if a.AutoEndTurn && a.fsm.Phase() == Playing {
		if err := a.SubmitTurn(); err != nil {
			a.Logger.Warnf("error submitting turn: %s", err)
		}
	}
}

// receive moves every chunk read so far into the framer and extracts the
// complete messages into the inbox.
func (a *App) receive() {
	for {
		select {
		case chunk := <-a.chunks:
			if chunk.Err != nil {
				a.Logger.Debugf("server connection closed: %s", chunk.Err)
				a.readErr = chunk.Err
				continue
			}
			_, _ = a.framer.Write(chunk.Data)
		default:
			a.extractFrames()
			return
		}
	}
}

func (a *App) extractFrames() {
	for {
		m, ok, err := a.framer.Next()
		if err != nil {
			a.Logger.Warnf("discarding input from server: %s", err)
			continue
		}
		if !ok {
			return
		}
		a.inbox = append(a.inbox, m)
	}
}

func (a *App) dispatchInbox() {
	for len(a.inbox) > 0 {
		m := a.inbox[0]
		a.inbox = a.inbox[1:]
		a.handleMessage(m)
	}
}

func (a *App) handleMessage(m message.Message) {
	a.Dumper.Dump("recv", m)
	if m.Sender != message.ServerID {
		a.Logger.Warnf("discarding %s claiming to be from player %d", m.Type, m.Sender)
		return
	}
	ev, err := message.Decode(m)
	if err != nil {
		a.Logger.Warnf("discarding undecodable message: %s", err)
		return
	}
	a.fsm.Process(ServerMessage{Event: ev})
}

func (a *App) send(ev message.Event) error {
	if !a.connected {
		return ErrNotConnected
	}
	m, err := message.From(a.playerID, ev)
	if err != nil {
		return err
	}
	a.Dumper.Dump("send", m)
	return a.conn.Send(m)
}

// SubmitTurn sends the local player's orders and waits for the turn to resolve.
func (a *App) SubmitTurn() error {
	if a.fsm.Phase() != Playing {
		return fmt.Errorf("client: cannot end the turn in phase %s", a.fsm.Phase())
	}
	if err := a.send(message.TurnOrdersEvent{Turn: a.turn}); err != nil {
		return err
	}
	a.fsm.Process(TurnEnded{})
	return nil
}

// StartMultiplayerGame asks the server to begin the match. Only the host may do so.
func (a *App) StartMultiplayerGame() error {
	if !a.host || !a.fsm.Phase().waiting() {
		return errors.New("client: only the host can start the game from the lobby")
	}
	return a.send(message.StartGameRequest{})
}

// SendChat sends a chat message to every other player.
func (a *App) SendChat(text string) error {
	if a.fsm.Phase().inGame() {
		return a.send(message.PlayerChatEvent{From: a.playerID, Text: text})
	}
	return a.send(message.LobbyChatEvent{From: a.playerID, Text: text})
}

// SaveGame asks the server to save the game under filename and blocks until
// it confirms. Messages arriving in the meantime are kept for the next Poll.
func (a *App) SaveGame(filename string) error {
	if err := a.send(message.SaveGameRequest{Filename: filename}); err != nil {
		return err
	}
	for {
		m, err := a.nextMessage()
		if err != nil {
			return fmt.Errorf("waiting for save of %s: %w", filename, err)
		}
		if m.Type != message.SaveGame || m.Sender != message.ServerID {
			a.inbox = append(a.inbox, m)
			continue
		}
		ev, err := message.Decode(m)
		if err != nil {
			return err
		}
		ack := ev.(message.SaveGameAck)
		if !ack.OK {
			return fmt.Errorf("server failed to save %s: %s", filename, ack.Error)
		}
		return nil
	}
}

// SaveGameManually saves under the unprefixed name for the current turn.
func (a *App) SaveGameManually() (string, error) {
	filename := autosave.ManualFilename(a.match())
	return filename, a.SaveGame(filename)
}

// nextMessage blocks until a complete message has been received. It fails
// once the reader has reported the end of the stream.
func (a *App) nextMessage() (message.Message, error) {
	for {
		m, ok, err := a.framer.Next()
		if err != nil {
			a.Logger.Warnf("discarding input from server: %s", err)
			continue
		}
		if ok {
			return m, nil
		}

		if a.conn == nil || a.readErr != nil {
			return message.Message{}, ErrNotConnected
		}
		chunk, open := <-a.chunks
		if !open {
			return message.Message{}, ErrNotConnected
		}
		if chunk.Err != nil {
			a.readErr = chunk.Err
			return message.Message{}, ErrNotConnected
		}
		_, _ = a.framer.Write(chunk.Data)
	}
}

// EndGame leaves the current game and returns to the intro screen.
func (a *App) EndGame() {
	if a.fsm.Phase() != Intro {
		a.fsm.Process(ResetToIntro{})
		return
	}
	a.endSession()
}

// Run polls at the configured frame rate until ctx is done or the session
// ends.
func (a *App) Run(ctx context.Context) error {
	rate := a.Config.Client.FrameRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	ended := a.ended
	for {
		select {
		case <-ctx.Done():
			a.EndGame()
			return ctx.Err()
		case <-ticker.C:
			a.Poll()
			if a.ended > ended {
				return nil
			}
		}
	}
}

func (a *App) disconnect() {
	if a.conn == nil {
		return
	}
	a.stopReader()
	if err := a.conn.Close(); err != nil {
		a.Logger.Debugf("error closing server connection: %s", err)
	}
	a.conn = nil
	a.connected = false
	a.inbox = nil
}

func (a *App) killServer() {
	if a.server == nil {
		return
	}
	if err := a.server.Kill(); err != nil {
		a.Logger.Warnf("error killing server: %s", err)
	}
	a.server = nil
}

func (a *App) resetIdentity() {
	a.playerID = message.Unassigned
	a.host = false
	a.empire = -1
	a.empireName = ""
	a.turn = 0
	a.lobby = nil
	a.startSent = false
}

func (a *App) match() autosave.Match {
	return autosave.Match{
		SinglePlayer: a.singlePlayer,
		Host:         a.host,
		PlayerName:   a.Config.Client.PlayerName,
		EmpireName:   a.empireName,
		Turn:         a.turn,
	}
}

// The methods below are called by the state machine.

func (a *App) assignPlayer(id message.PlayerID, host bool) {
	a.playerID = id
	a.host = host
	a.Logger.Infof("assigned player id %d", id)
}

func (a *App) lobbyUpdated(ev message.LobbyUpdateEvent) {
	a.lobby = ev.Players
}

func (a *App) chatReceived(from message.PlayerID, text string) {
	a.Logger.Infof("[chat] %d: %s", from, text)
}

func (a *App) gameStarted(ev message.GameStartEvent) {
	a.empire = ev.EmpireID
	a.empireName = ev.EmpireName
	a.turn = ev.Turn
	if ev.PlayerID != message.Unassigned {
		a.playerID = ev.PlayerID
	}
	a.Logger.Infof("game started on turn %d as %s", ev.Turn, ev.EmpireName)
}

func (a *App) turnStarted(turn int) {
	a.turn = turn
}

func (a *App) autosave(newGame bool) {
	if _, _, err := a.saves.Autosave(newGame, a.match()); err != nil {
		a.Logger.Errorf("autosave failed: %s", err)
	}
}

func (a *App) empireID() int { return a.empire }

func (a *App) versions() (string, string) {
	return a.Config.SourceVersion, a.Config.SettingsVersion
}

func (a *App) notify(text string) { a.Notifier.Notify(text) }

func (a *App) endSession() {
	a.Logger.Debug("ending session")
	a.ended++
	a.disconnect()
	if a.server != nil {
		if err := a.server.RequestTermination(); err != nil {
			a.Logger.Warnf("error stopping server: %s", err)
		}
		a.server = nil
	}
	a.resetIdentity()
}
