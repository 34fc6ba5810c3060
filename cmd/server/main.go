package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coopadventure/internal/chronicle"
	"coopadventure/internal/config"
	"coopadventure/internal/game"
	"coopadventure/internal/server"
	"coopadventure/internal/session"
	"coopadventure/internal/telemetry"
)

const serviceName = "coopadventure"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Parse(flag.NewFlagSet("server", flag.ExitOnError), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	story, err := game.LoadStory(cfg.StoryPath)
	if err != nil {
		return err
	}
	log.Printf("loaded story %q from %s: %d nodes, roles %v", story.Title, cfg.StoryPath, len(story.Nodes), story.RoleOrder)

	srv := &server.Server{
		Story:        story,
		Addr:         cfg.Addr,
		WSAddr:       cfg.WSAddr,
		OutboxSize:   cfg.OutboxSize,
		WriteTimeout: cfg.WriteTimeout,
		Session:      session.Options{VoteTimeout: cfg.VoteTimeout},
		Rematch:      cfg.Rematch,
	}
	if cfg.ChronicleDir != "" {
		srv.Chronicle = chronicle.Writer{Dir: cfg.ChronicleDir}
	}
	return srv.Run(ctx)
}
