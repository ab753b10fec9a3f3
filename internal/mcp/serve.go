package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// Transports accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// ServeOptions selects the transport.
type ServeOptions struct {
	Transport string
	Host      string
	Port      int
}

// Addr returns host:port.
func (o ServeOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Serve runs srv on the chosen transport until ctx is canceled or the
// transport fails.
func Serve(ctx context.Context, srv *server.MCPServer, opts ServeOptions) error {
	switch opts.Transport {
	case "", TransportStdio:
		L_info("mcp: serving on stdio")
		stdio := server.NewStdioServer(srv)
		stdio.SetErrorLogger(StdLogger("mcp"))
		err := stdio.Listen(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	case TransportHTTP:
		hs := server.NewStreamableHTTPServer(srv)
		L_info("mcp: serving streamable http", "url", "http://"+opts.Addr()+"/mcp")
		return runHTTP(ctx, opts.Addr(), hs.Start, hs.Shutdown)

	case TransportSSE:
		ss := server.NewSSEServer(srv, server.WithBaseURL("http://"+opts.Addr()))
		L_info("mcp: serving sse", "url", "http://"+opts.Addr()+"/sse")
		return runHTTP(ctx, opts.Addr(), ss.Start, ss.Shutdown)

	default:
		return fmt.Errorf("unknown transport %q", opts.Transport)
	}
}

func runHTTP(ctx context.Context, addr string, start func(string) error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	L_info("mcp: shutting down http transport")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
