// Command mio-collection manages pubsub collection nodes (XEP-0248
// hierarchical node groups).
//
// Usage:
//
//	mio-collection -jid user@example.com -password secret -node rooms -create [-title Rooms]
//	mio-collection -jid user@example.com -password secret -node rooms -add -child kitchen
//	mio-collection -jid user@example.com -password secret -node rooms -remove -child kitchen
//	mio-collection -jid user@example.com -password secret -node rooms -query-children
//	mio-collection -jid user@example.com -password secret -node kitchen -query-parents
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
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	jidFlag := flag.String("jid", "", "full JID, user@domain/resource")
	passwordFlag := flag.String("password", "", "JID password")
	node := flag.String("node", "", "collection node id")
	child := flag.String("child", "", "child node id (-add/-remove only)")
	title := flag.String("title", "", "collection title (-create only)")
	create := flag.Bool("create", false, "create -node as a collection")
	add := flag.Bool("add", false, "add -child under -node")
	remove := flag.Bool("remove", false, "remove -child from -node")
	queryChildren := flag.Bool("query-children", false, "list -node's member nodes")
	queryParents := flag.Bool("query-parents", false, "list the collections -node belongs to")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

	if *node == "" {
		fmt.Fprintln(os.Stderr, "mio-collection: -node is required")
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
	case *create:
		if err := conn.CollectionCreate(ctx, *node, *title); err != nil {
			logger.Error("collection create failed", "node", *node, "error", err)
			os.Exit(1)
		}
		fmt.Printf("created collection %q\n", *node)
	case *add:
		requireChild(*child)
		if err := conn.CollectionAddChild(ctx, *node, *child); err != nil {
			logger.Error("collection add child failed", "node", *node, "child", *child, "error", err)
			os.Exit(1)
		}
		fmt.Printf("added %q under %q\n", *child, *node)
	case *remove:
		requireChild(*child)
		if err := conn.CollectionRemoveChild(ctx, *node, *child); err != nil {
			logger.Error("collection remove child failed", "node", *node, "child", *child, "error", err)
			os.Exit(1)
		}
		fmt.Printf("removed %q from %q\n", *child, *node)
	case *queryChildren:
		children, err := conn.CollectionQueryChildren(ctx, *node)
		if err != nil {
			logger.Error("collection query children failed", "node", *node, "error", err)
			os.Exit(1)
		}
		for _, c := range children {
			fmt.Printf("%-30s %s\n", c.Node, c.Name)
		}
	case *queryParents:
		parents, err := conn.CollectionQueryParents(ctx, *node)
		if err != nil {
			logger.Error("collection query parents failed", "node", *node, "error", err)
			os.Exit(1)
		}
		for _, p := range parents {
			fmt.Println(p)
		}
	default:
		fmt.Fprintln(os.Stderr, "mio-collection: pick one of -create, -add, -remove, -query-children, -query-parents")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func requireChild(child string) {
	if child == "" {
		fmt.Fprintln(os.Stderr, "mio-collection: -child is required")
		os.Exit(1)
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
		fmt.Fprintln(os.Stderr, "mio-collection: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
