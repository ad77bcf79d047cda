package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/agentify-session/internal/config"
	"github.com/jrsteele09/agentify-session/internal/logger"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// errStopped marks errors raised after a stop signal; the process exits
// instead of restarting.
var errStopped = errors.New("server stopped")

func main() {
	for {
		err := run()
		if err == nil {
			break
		}
		if !shouldRestart(err) {
			log.Error().Err(err).Msg("Server did not stop cleanly")
			break
		}
		log.Error().Err(err).Msg("Error running server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

// shouldRestart is true for serve failures and panics only
func shouldRestart(err error) bool {
	return err != nil && !errors.Is(err, errStopped)
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("Recovered from panic: %v", r)
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logger.Init(c.GetLogFile(), c.GetLogLevel(), c.GetEnv() == "DEV")
	displayAppname(c.GetAppName())

	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	server := newHTTPServer(c.GetPort(), a)
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(server) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

// newHTTPServer serves a and interrupts its event streams and open popups
// when shut down
func newHTTPServer(addr string, a *app) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(a.interrupt)
	return server
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%w: server.Shutdown: %w", errStopped, err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
