// Command mio-subscriptions queries, adds, or removes pubsub
// subscriptions, and can optionally listen for incoming notifications.
//
// Usage:
//
//	mio-subscriptions -jid user@example.com -password secret -query
//	mio-subscriptions -jid user@example.com -password secret -node songs -subscribe
//	mio-subscriptions -jid user@example.com -password secret -node songs -unsubscribe [-subid s1]
//	mio-subscriptions -jid user@example.com -password secret -listen
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
	node := flag.String("node", "", "event node id (required for -subscribe/-unsubscribe)")
	subID := flag.String("subid", "", "subscription id (optional, -unsubscribe only)")
	query := flag.Bool("query", false, "list current subscriptions")
	subscribe := flag.Bool("subscribe", false, "subscribe to -node")
	unsubscribe := flag.Bool("unsubscribe", false, "unsubscribe from -node")
	listen := flag.Bool("listen", false, "start listening and print notifications until interrupted")
	verbose := flag.Bool("verbose", false, "print debug logging")
	timeout := flag.Duration("timeout", 30*time.Second, "connect timeout (operations are bounded by the config's request timeout)")
	flag.Parse()

	logger := newLogger(*verbose)
	cfg := loadConfig(*configPath, *jidFlag, *passwordFlag, logger)

	conn := mio.NewConnection(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := conn.Connect(ctx, cfg.JID, cfg.Password, func(ev mio.Event) {
		logger.Info("connection event", "event", ev)
	}); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer conn.Disconnect()

	switch {
	case *query:
		subs, err := conn.SubscriptionsQuery(context.Background(), *node)
		if err != nil {
			logger.Error("subscriptions query failed", "error", err)
			os.Exit(1)
		}
		for _, s := range subs {
			fmt.Printf("%-30s jid=%-30s subid=%s\n", s.Node, s.JID, s.SubID)
		}
	case *subscribe:
		requireNode(*node, "mio-subscriptions", "-subscribe")
		if err := conn.Subscribe(context.Background(), *node); err != nil {
			logger.Error("subscribe failed", "node", *node, "error", err)
			os.Exit(1)
		}
		fmt.Printf("subscribed to %q\n", *node)
	case *unsubscribe:
		requireNode(*node, "mio-subscriptions", "-unsubscribe")
		if err := conn.Unsubscribe(context.Background(), *node, *subID); err != nil {
			logger.Error("unsubscribe failed", "node", *node, "error", err)
			os.Exit(1)
		}
		fmt.Printf("unsubscribed from %q\n", *node)
	case *listen:
		conn.StartListening()
		fmt.Println("listening for notifications, Ctrl+C to stop")
		for {
			resp, err := conn.ReceiveNotification(5 * time.Second)
			if err != nil {
				// Timeout is the normal idle case; keep polling.
				continue
			}
			fmt.Printf("notification: node=%s\n", resp.Data.Node)
			for _, t := range resp.Data.Transducers {
				fmt.Printf("  %-20s %s\n", t.Name, t.Value)
			}
		}
	default:
		fmt.Fprintln(os.Stderr, "mio-subscriptions: pick one of -query, -subscribe, -unsubscribe, -listen")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func requireNode(node, prog, flagName string) {
	if node == "" {
		fmt.Fprintf(os.Stderr, "%s: -node is required with %s\n", prog, flagName)
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
		fmt.Fprintln(os.Stderr, "mio-subscriptions: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
