package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-auth/internal/config"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/logging"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		msg := "error running server"
		if apperrors.KindOf(err) == apperrors.KindConfiguration {
			msg = "invalid configuration"
		}
		log.Fatal().Err(err).Msg(msg)
	}
	log.Info().Msg("server stopped")
}

func run() error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := newRegistry(ctx, c)
	if err != nil {
		return err
	}
	if closer, ok := registry.(io.Closer); ok {
		defer closer.Close()
	}

	provider, err := newProvider(ctx, c)
	if err != nil {
		return err
	}

	issuer, err := token.NewIssuer(c.GetSessionSecret())
	if err != nil {
		return err
	}
	codec := sessions.NewCookieCodec(sessions.CookieConfig{
		Secure:     c.GetCookieSecure(),
		Domain:     c.GetCookieDomain(),
		AccessTTL:  c.GetAccessTokenTTL(),
		RefreshTTL: c.GetRefreshTokenTTL(),
	})

	serviceOpts := []sessions.Option{sessions.WithTokenTTL(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL())}
	var serverOpts []server.Option
	if c.GetDemoMode() {
		log.Warn().Msg("demo mode is enabled")
		demo := sessions.DefaultDemoAccounts()
		serviceOpts = append(serviceOpts, sessions.WithDemoAccounts(demo))
		serverOpts = append(serverOpts, server.WithDemoAccounts(demo))
	}
	service := sessions.NewService(provider, issuer, registry, codec, serviceOpts...)

	handler, err := server.New(c, service, provider, registry, serverOpts...)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return listenAndServe(httpServer)
	})
	group.Go(func() error {
		return refresh.NewSweeper(registry, c.GetSweepInterval()).Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return shutdown(httpServer)
	})
	return group.Wait()
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
