package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annel0/voxel-server/internal/audit"
	"github.com/annel0/voxel-server/internal/eventbus"
)

const timeFormat = "15:04:05"

func main() {
	var (
		command    = flag.String("cmd", "tail", "Command: tail (NATS JetStream), history (MongoDB)")
		natsURL    = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		stream     = flag.String("stream", "EVENTS", "JetStream stream name")
		mongoURI   = flag.String("mongo", "mongodb://localhost:27017", "MongoDB URI")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		fromStart  = flag.Bool("from-start", false, "tail: replay stored history before new events")
		limit      = flag.Int("limit", audit.DefaultLimit, "history: maximum number of events")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(ctx, *natsURL, *stream, eventbus.Filter{
			Types:     parseStringList(*eventTypes),
			FromStart: *fromStart,
		})
	case "history":
		err = showHistory(ctx, *mongoURI, parseStringList(*eventTypes), *limit)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, history")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailEvents выводит события из JetStream, пока не прервут
func tailEvents(ctx context.Context, url, stream string, f eventbus.Filter) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("🎬 Tailing %s on %s (types: %v, from start: %v)\n", stream, url, f.Types, f.FromStart)

	var count atomic.Int64
	sub, err := bus.Subscribe(ctx, f, func(ctx context.Context, ev *eventbus.Envelope) {
		printEvent(ev)
		count.Add(1)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	fmt.Printf("\n📊 Total events: %d\n", count.Load())
	return nil
}

// showHistory выводит последние события из архива MongoDB, старые первыми
func showHistory(ctx context.Context, uri string, types []string, limit int) error {
	archive, err := audit.NewMongoLog(audit.MongoConfig{URI: uri})
	if err != nil {
		return err
	}
	defer archive.Close()

	if len(types) == 0 {
		types = []string{""}
	}
	for _, t := range types {
		events, err := archive.Recent(ctx, t, limit)
		if err != nil {
			return err
		}
		for i := len(events) - 1; i >= 0; i-- {
			printEvent(&events[i])
		}
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %-13s %s", ev.Timestamp.Local().Format(timeFormat), ev.EventType, ev.ID)
	if ev.CorrelationID != "" {
		fmt.Printf(" nick=%s", ev.CorrelationID)
	}
	fmt.Println()

	switch ev.EventType {
	case eventbus.EventBlockChanged:
		var p eventbus.BlockPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Block: (%d,%d,%d) mat=%d\n", p.X, p.Y, p.Z, p.Mat)
		}
	case eventbus.EventChat:
		var p eventbus.ChatPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  <%s> %s\n", p.Nick, p.Msg)
		}
	case eventbus.EventPlayerJoined, eventbus.EventPlayerLeft, eventbus.EventPlayerKicked:
		var p eventbus.PlayerPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Player: %s at (%.1f,%.1f,%.1f) %s\n", p.Nick, p.X, p.Y, p.Z, p.Reason)
		}
	case eventbus.EventWorldSaved:
		var p eventbus.WorldSavedPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Saved: %s, %d cells, %s\n", p.Backend, p.Cells, p.Duration)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
