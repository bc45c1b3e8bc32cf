package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkctl/internal/client"
	"github.com/danmuck/linkctl/internal/config"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/server"
	"github.com/danmuck/linkctl/internal/transport"
)

func main() {
	observability.InitLogger("linkctl")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "call":
		err = runCall(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: linkctl serve [-config path]")
	fmt.Fprintln(os.Stderr, "       linkctl call [-config path] -service svc -method m [-payload data]")
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(path)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to TOML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	registry := server.NewRegistry()
	if err := registry.Register("echo", "echo", func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}); err != nil {
		return err
	}
	if err := registry.Register("echo", "reverse", func(_ context.Context, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		for i, b := range payload {
			out[len(payload)-1-i] = b
		}
		return out, nil
	}); err != nil {
		return err
	}

	srv := server.NewWithLimits(registry, cfg.Limits())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	if cfg.Network == "websocket" {
		httpSrv := &http.Server{
			Addr: cfg.Address,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sock, err := transport.AcceptWebSocket(w, r)
				if err != nil {
					log.Error().Err(err).Msg("websocket accept failed")
					return
				}
				srv.ServeConn(sock)
			}),
		}
		go func() {
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		log.Info().Str("addr", cfg.Address).Msg("serving websocket")
		select {
		case err := <-serveErr:
			return err
		case <-stop:
		}
		_ = httpSrv.Close()
	} else {
		l, err := transport.Listen(cfg.Network, cfg.Address)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(l); !errors.Is(err, server.ErrServerClosed) {
				serveErr <- err
			}
		}()
		log.Info().Str("network", cfg.Network).Str("addr", cfg.Address).Msg("serving")
		select {
		case err := <-serveErr:
			return err
		case <-stop:
		}
	}

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	configPath := fs.String("config", "", "path to TOML config")
	service := fs.String("service", "echo", "service name")
	method := fs.String("method", "echo", "method name")
	payload := fs.String("payload", "", "request payload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()

	var sock transport.Socket
	if cfg.Network == "websocket" {
		sock, err = transport.DialWebSocket(ctx, cfg.Address)
	} else {
		sock, err = transport.Dial(ctx, cfg.Network, cfg.Address)
	}
	if err != nil {
		return err
	}

	c := client.NewWithLimits(sock, cfg.Limits())
	defer func() {
		_ = c.Close()
		_ = sock.Close()
	}()

	out, err := c.Call(ctx, *service, *method, []byte(*payload))
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", out)
	return nil
}
