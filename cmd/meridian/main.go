// Command meridian wires the sync components against a hosted backend and
// keeps them live until interrupted. It is the integration entry point; the
// components themselves are consumed as a library.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meridian/internal/cache"
	"meridian/internal/chat"
	"meridian/internal/composer"
	"meridian/internal/config"
	"meridian/internal/feed"
	"meridian/internal/gateway"
	"meridian/internal/observability"
	"meridian/internal/story"
)

type logNotifier struct{}

func (logNotifier) Notify(msg string) { log.Printf("notice: %s", msg) }

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "meridian-client",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExport,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.SamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	redisCache := cache.New(cfg.RedisURL)

	// The access token comes from the host application's auth flow; the
	// binary reads it from the environment.
	var sessions gateway.SessionProvider = gateway.AnonymousSessions{}
	if token := os.Getenv("MERIDIAN_ACCESS_TOKEN"); token != "" {
		sess, err := gateway.SessionFromToken(token)
		if err != nil {
			log.Fatalf("Invalid access token: %v", err)
		}
		sessions = gateway.StaticSessions{S: sess}
		log.Printf("Authenticated as %s", sess.UserID)
	}

	rest := gateway.NewREST(gateway.Options{
		BaseURL:  cfg.GatewayURL,
		AnonKey:  cfg.GatewayAnonKey,
		Sessions: sessions,
		Retry: gateway.RetryPolicy{
			Count:   cfg.RetryCount,
			Wait:    time.Duration(cfg.RetryWaitMS) * time.Millisecond,
			MaxWait: time.Duration(cfg.RetryMaxWaitMS) * time.Millisecond,
		},
	})

	var realtime gateway.Realtime
	if cfg.RealtimeURL != "" {
		rt := gateway.NewRealtimeClient(cfg.RealtimeURL, cfg.GatewayAnonKey)
		realtime = rt
	}

	feedSync := feed.New(feed.Options{
		Executor: rest,
		Sessions: sessions,
		Cache:    redisCache,
		Notifier: logNotifier{},
		PageSize: cfg.FeedPageSize,
	})

	stories := story.NewService(rest, rest, sessions, cfg.StorageBucket, story.RealClock())

	messages := chat.NewService(chat.Options{
		Executor: rest,
		Sessions: sessions,
		Composer: composer.New(rest, cfg.StorageBucket),
		Realtime: realtime,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadCtx, loadCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := feedSync.Load(loadCtx, 0, false); err != nil {
		log.Printf("Initial feed load failed: %v", err)
	} else {
		posts := feedSync.Posts()
		log.Printf("Feed loaded: %d posts, more=%v", len(posts), feedSync.HasMore())
		for _, p := range posts {
			author := p.AuthorID
			if p.Author != nil && p.Author.FullName != "" {
				author = p.Author.FullName
			}
			fmt.Printf("  [%s] %s: %.60s\n", p.CreatedAt.Format(time.RFC3339), author, p.Content)
		}
	}
	loadCancel()

	storyCtx, storyCancel := context.WithTimeout(ctx, 15*time.Second)
	if groups, err := stories.LoadGroups(storyCtx); err != nil {
		log.Printf("Story load failed: %v", err)
	} else {
		log.Printf("Stories loaded: %d author groups", len(groups))
	}
	storyCancel()

	if realtime != nil {
		if err := messages.Watch(ctx, func(conversationID string) {
			log.Printf("Conversation %s updated", conversationID)
		}); err != nil {
			log.Printf("Realtime subscription failed: %v", err)
		}
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if realtime != nil {
		if err := realtime.Close(); err != nil {
			log.Printf("Realtime shutdown error: %v", err)
		}
	}
	if err := rest.Close(); err != nil {
		log.Printf("Gateway shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
}
