// Command mio-schedule queries, merges, or removes entries in a node's
// schedule record.
//
// Usage:
//
//	mio-schedule -jid user@example.com -password secret -node thermostat -query
//	mio-schedule -jid user@example.com -password secret -node thermostat -merge -transducer heat -value 68 -at "07:00"
//	mio-schedule -jid user@example.com -password secret -node thermostat -remove -event-id 2
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/miopubsub/internal/config"
	"github.com/nugget/miopubsub/internal/mio"
	"github.com/nugget/miopubsub/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	jidFlag := flag.String("jid", "", "full JID, user@domain/resource")
	passwordFlag := flag.String("password", "", "JID password")
	node := flag.String("node", "", "event node id")
	query := flag.Bool("query", false, "list -node's schedule")
	merge := flag.Bool("merge", false, "merge one event into -node's schedule")
	remove := flag.Bool("remove", false, "remove one event from -node's schedule")
	eventID := flag.Int("event-id", -1, "event id (-merge updates an existing id, -remove deletes it)")
	transducer := flag.String("transducer", "", "transducer name (-merge only)")
	value := flag.String("value", "", "transducer value to set at the scheduled time (-merge only)")
	at := flag.String("at", "", "time of day the event fires, e.g. \"07:00\" (-merge only)")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

	if *node == "" {
		fmt.Fprintln(os.Stderr, "mio-schedule: -node is required")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := newLogger(*verbose)
	cfg := loadConfig(*configPath, *jidFlag, *passwordFlag, logger)

	conn := mio.NewConnection(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := conn.Connect(ctx, cfg.JID, cfg.Password, nil); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer conn.Disconnect()

	switch {
	case *merge:
		id := *eventID
		if id < 0 {
			id = 0
		}
		incoming := []model.ScheduleEvent{{
			ID:              id,
			TransducerName:  *transducer,
			TransducerValue: *value,
			Time:            *at,
		}}
		events, err := conn.ScheduleMerge(ctx, *node, incoming)
		if err != nil {
			logger.Error("schedule merge failed", "node", *node, "error", err)
			os.Exit(1)
		}
		printSchedule(events)
	case *remove:
		if *eventID < 0 {
			fmt.Fprintln(os.Stderr, "mio-schedule: -event-id is required with -remove")
			os.Exit(1)
		}
		events, err := conn.ScheduleRemove(ctx, *node, *eventID)
		if err != nil {
			logger.Error("schedule remove failed", "node", *node, "error", err)
			os.Exit(1)
		}
		printSchedule(events)
	case *query:
		events, err := conn.ScheduleQuery(ctx, *node)
		if err != nil {
			logger.Error("schedule query failed", "node", *node, "error", err)
			os.Exit(1)
		}
		printSchedule(events)
	default:
		fmt.Fprintln(os.Stderr, "mio-schedule: pick one of -query, -merge, -remove")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func printSchedule(events []model.ScheduleEvent) {
	for _, e := range events {
		fmt.Printf("[%d] %-20s = %-10s at %s\n", e.ID, e.TransducerName, e.TransducerValue, e.Time)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = config.LevelTrace
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: config.ReplaceLogLevelNames}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadConfig(path, jid, password string, logger *slog.Logger) *config.Config {
	var cfg *config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			logger.Error("config load failed", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = c
	} else {
		cfg = config.Default()
	}
	if jid != "" {
		cfg.JID = jid
	}
	if password != "" {
		cfg.Password = password
	}
	if !cfg.Configured() {
		fmt.Fprintln(os.Stderr, "mio-schedule: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
