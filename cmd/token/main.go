// Command token mints a bearer token for the API's client routes.
//
//	token -client ops-dashboard -role viewer -ttl 720h
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"answering-machine/internal/auth"
	"answering-machine/internal/config"
	"answering-machine/internal/rbac"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(os.Args[1:], time.Now()); err != nil {
		slog.Error("token", "err", err)
		os.Exit(1)
	}
}

func run(args []string, now time.Time) error {
	fset := flag.NewFlagSet("token", flag.ContinueOnError)
	clientID := fset.String("client", "", "client id recorded in the token subject")
	role := fset.String("role", rbac.RoleCaller, "role: caller, viewer or admin")
	ttl := fset.Duration("ttl", 0, "token lifetime (default JWT_ACCESS_TTL or 24h)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*clientID) == "" {
		return errors.New("-client is required")
	}
	if !rbac.Known(*role) {
		return fmt.Errorf("unknown role %q", *role)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	cfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}

	tok, err := m.IssueAccess(now, *clientID, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
