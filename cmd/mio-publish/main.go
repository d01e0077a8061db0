// Command mio-publish publishes a single item to a pubsub event node.
//
// Usage:
//
//	mio-publish -jid user@example.com -password secret -node songs -item-id 42 -payload "now playing"
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
	"github.com/nugget/miopubsub/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	jidFlag := flag.String("jid", "", "full JID, user@domain/resource")
	passwordFlag := flag.String("password", "", "JID password")
	node := flag.String("node", "", "event node id to publish to")
	itemID := flag.String("item-id", "", "item id (server assigns one if empty)")
	payload := flag.String("payload", "", "raw text payload carried in the item's <payload> element")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

	if *node == "" {
		fmt.Fprintln(os.Stderr, "mio-publish: -node is required")
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

	item := wire.NewStanza("payload", "")
	item.Text = *payload

	if err := conn.PublishItem(ctx, *node, *itemID, item); err != nil {
		logger.Error("publish failed", "node", *node, "error", err)
		os.Exit(1)
	}
	fmt.Printf("published item to %q\n", *node)
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
		fmt.Fprintln(os.Stderr, "mio-publish: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
