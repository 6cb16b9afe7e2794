// Package stdio serves the MCP protocol over stdin/stdout via mcp-go.
// Logs go to stderr so protocol messages on stdout stay clean.
package stdio

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/mcp"
)

// Transport runs the mcp-go stdio server.
type Transport struct {
	server *mcp.Server
	stdin  io.Reader
	stdout io.Writer
	logger *logging.Logger
}

// NewTransport creates a stdio transport on os.Stdin/os.Stdout.
func NewTransport(s *mcp.Server) *Transport {
	return NewTransportWithIO(s, os.Stdin, os.Stdout)
}

// NewTransportWithIO creates a stdio transport with custom streams, for
// tests.
func NewTransportWithIO(s *mcp.Server, stdin io.Reader, stdout io.Writer) *Transport {
	return &Transport{
		server: s,
		stdin:  stdin,
		stdout: stdout,
		logger: logging.GetLogger("mcp.stdio"),
	}
}

// Start serves newline-delimited JSON-RPC until stdin closes or the
// context ends.
func (t *Transport) Start(ctx context.Context) error {
	t.logger.Info("Starting stdio transport")
	stdioServer := server.NewStdioServer(t.server.MCPServer())
	stdioServer.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))
	return stdioServer.Listen(ctx, t.stdin, t.stdout)
}
