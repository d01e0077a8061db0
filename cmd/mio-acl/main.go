// Command mio-acl queries or sets a pubsub node's access control list.
//
// Usage:
//
//	mio-acl -jid user@example.com -password secret -node songs -query
//	mio-acl -jid user@example.com -password secret -node songs -set -user alice@example.com -affiliation publisher
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
	node := flag.String("node", "", "event node id (empty queries the caller's own affiliations)")
	query := flag.Bool("query", false, "list affiliations")
	set := flag.Bool("set", false, "set -user's affiliation on -node")
	user := flag.String("user", "", "target jid (-set only)")
	affiliation := flag.String("affiliation", "", "none, member, publisher, publish-only, owner, outcast (-set only)")
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
	case *set:
		if *node == "" || *user == "" || *affiliation == "" {
			fmt.Fprintln(os.Stderr, "mio-acl: -set requires -node, -user, and -affiliation")
			os.Exit(1)
		}
		kind, ok := model.ParseAffiliationKind(*affiliation)
		if !ok {
			fmt.Fprintf(os.Stderr, "mio-acl: unknown affiliation %q\n", *affiliation)
			os.Exit(1)
		}
		if err := conn.AclAffiliationSet(ctx, *node, *user, kind); err != nil {
			logger.Error("affiliation set failed", "node", *node, "user", *user, "error", err)
			os.Exit(1)
		}
		fmt.Printf("set %s's affiliation on %q to %s\n", *user, *node, kind)
	case *query:
		affs, err := conn.AclAffiliationsQuery(ctx, *node)
		if err != nil {
			logger.Error("affiliations query failed", "node", *node, "error", err)
			os.Exit(1)
		}
		for _, a := range affs {
			fmt.Printf("%-30s jid=%-30s %s\n", a.Node, a.JID, a.Affiliation)
		}
	default:
		fmt.Fprintln(os.Stderr, "mio-acl: pick one of -query, -set")
		flag.PrintDefaults()
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
		fmt.Fprintln(os.Stderr, "mio-acl: -jid and -password (or a config file) are required")
		os.Exit(1)
	}
	return cfg
}
