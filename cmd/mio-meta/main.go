// Command mio-meta queries or merge-publishes a node's meta record.
//
// Usage:
//
//	mio-meta -jid user@example.com -password secret -node songs -query
//	mio-meta -jid user@example.com -password secret -node songs -merge -kind device -name "Living Room Speaker" -info "Sonos One"
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
	query := flag.Bool("query", false, "print the node's current meta record")
	merge := flag.Bool("merge", false, "merge the given fields into the node's meta record and republish")
	kind := flag.String("kind", "", "meta kind: device, location, gateway, adapter, agent")
	name := flag.String("name", "", "meta name")
	info := flag.String("info", "", "meta info/description")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Parse()

	if *node == "" {
		fmt.Fprintln(os.Stderr, "mio-meta: -node is required")
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
		incoming := model.Meta{Kind: model.ParseMetaKind(*kind), Name: *name, Info: *info}
		merged, err := conn.MetaMergePublish(ctx, *node, incoming)
		if err != nil {
			logger.Error("meta merge failed", "node", *node, "error", err)
			os.Exit(1)
		}
		printMeta(*node, merged)
	case *query:
		m, err := conn.MetaQuery(ctx, *node)
		if err != nil {
			logger.Error("meta query failed", "node", *node, "error", err)
			os.Exit(1)
		}
		printMeta(*node, *m)
	default:
		fmt.Fprintln(os.Stderr, "mio-meta: pick one of -query, -merge")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func printMeta(node string, m model.Meta) {
	fmt.Printf("node:   %s\n", node)
	fmt.Printf("kind:   %s\n", m.Kind)
	fmt.Printf("name:   %s\n", m.Name)
	fmt.Printf("info:   %s\n", m.Info)
	for _, t := range m.Transducers {
		fmt.Printf("  transducer %-20s unit=%s\n", t.Name, t.Unit)
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
		fmt.Fprintln(os.Stderr, "mio-meta: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
