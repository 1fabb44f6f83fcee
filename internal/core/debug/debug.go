package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/core"
	"github.com/dcrodman/orion/internal/message"
)

// This function starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, cfg *core.Config) {
	if cfg.Debugging.Enabled {
		StartPprofServer(logger, cfg.Debugging.PprofPort)
	}
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// MessageLogger writes a dump of every message passed to it when enabled.
type MessageLogger struct {
	Logger  *logrus.Logger
	Enabled bool
}

// Dump logs the header, decoded event and raw payload of a message.
// direction is a short label such as "recv" or "send".
func (l *MessageLogger) Dump(direction string, m message.Message) {
	if l == nil || !l.Enabled {
		return
	}
	event, err := message.Decode(m)
	if err != nil {
		l.Logger.Debugf("%s %s: undecodable payload (%s)\n%s", direction, m, err, spew.Sdump(m.Payload))
		return
	}
	l.Logger.Debugf("%s %s\n%s", direction, m, dumper.Sdump(event))
}
