// Command mio-node creates or deletes a pubsub event node.
//
// Usage:
//
//	mio-node -jid user@example.com -password secret -node songs [-title "Song plays"] [-access-model open]
//	mio-node -jid user@example.com -password secret -node songs -delete
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
	"github.com/nugget/miopubsub/internal/pubsub"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	jidFlag := flag.String("jid", "", "full JID, user@domain/resource")
	passwordFlag := flag.String("password", "", "JID password")
	node := flag.String("node", "", "event node id to create or delete")
	title := flag.String("title", "", "node title (create only)")
	accessModel := flag.String("access-model", "", "access model: open, whitelist, presence, roster")
	collection := flag.Bool("collection", false, "create node as a collection (XEP-0248)")
	del := flag.Bool("delete", false, "delete the node instead of creating it")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

	if *node == "" {
		fmt.Fprintln(os.Stderr, "mio-node: -node is required")
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

	if *del {
		if err := conn.DeleteNode(ctx, *node); err != nil {
			logger.Error("delete node failed", "node", *node, "error", err)
			os.Exit(1)
		}
		fmt.Printf("deleted node %q\n", *node)
		return
	}

	opts := pubsub.NodeOptions{Title: *title, AccessModel: *accessModel, Collection: *collection}
	if err := conn.CreateNode(ctx, *node, opts); err != nil {
		logger.Error("create node failed", "node", *node, "error", err)
		os.Exit(1)
	}
	fmt.Printf("created node %q\n", *node)
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
		fmt.Fprintln(os.Stderr, "mio-node: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
