// Command mio-reference manages the free-form reference graph between
// pubsub nodes (distinct from XEP-0248 collections; see mio-collection).
//
// Usage:
//
//	mio-reference -jid user@example.com -password secret -parent house -child kitchen -add [-also-at-child]
//	mio-reference -jid user@example.com -password secret -parent house -child kitchen -remove
//	mio-reference -jid user@example.com -password secret -node house -query
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
	node := flag.String("node", "", "node id (-query only)")
	parent := flag.String("parent", "", "parent node id (-add/-remove)")
	child := flag.String("child", "", "child node id (-add/-remove)")
	alsoAtChild := flag.Bool("also-at-child", false, "also publish the reverse link at -child (-add only)")
	add := flag.Bool("add", false, "add a child reference from -parent to -child")
	remove := flag.Bool("remove", false, "remove the reference between -parent and -child")
	query := flag.Bool("query", false, "list -node's references")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

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
	case *add:
		requireParentChild(*parent, *child)
		if err := conn.ReferenceChildAdd(ctx, *parent, *child, *alsoAtChild); err != nil {
			logger.Error("reference add failed", "parent", *parent, "child", *child, "error", err)
			os.Exit(1)
		}
		fmt.Printf("linked %q -> %q\n", *parent, *child)
	case *remove:
		requireParentChild(*parent, *child)
		if err := conn.ReferenceChildRemove(ctx, *parent, *child); err != nil {
			logger.Error("reference remove failed", "parent", *parent, "child", *child, "error", err)
			os.Exit(1)
		}
		fmt.Printf("unlinked %q -> %q\n", *parent, *child)
	case *query:
		if *node == "" {
			fmt.Fprintln(os.Stderr, "mio-reference: -node is required with -query")
			os.Exit(1)
		}
		refs, err := conn.ReferencesQuery(ctx, *node)
		if err != nil {
			logger.Error("references query failed", "node", *node, "error", err)
			os.Exit(1)
		}
		for _, r := range refs {
			fmt.Printf("%-8s %-30s meta=%s\n", r.Kind, r.NodeID, r.ReferencedMetaKind)
		}
	default:
		fmt.Fprintln(os.Stderr, "mio-reference: pick one of -add, -remove, -query")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func requireParentChild(parent, child string) {
	if parent == "" || child == "" {
		fmt.Fprintln(os.Stderr, "mio-reference: -parent and -child are required")
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
		fmt.Fprintln(os.Stderr, "mio-reference: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
