// Command treeadmin runs one-off maintenance against the game store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"tree-game-server/config"
	"tree-game-server/models"
	"tree-game-server/services"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

const usage = `usage: treeadmin <command>

commands:
  seed-weapons                  write the default weapon catalog
  reset-accounts                delete every account, name claim and roster entry
  set-admin <name> [true|false] grant (default) or revoke admin on an account
  list-users                    print every account`

var errUsage = errors.New(usage)

type app struct {
	catalog  *services.CatalogService
	accounts *services.AccountService
	out      io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	clock := clockwork.NewRealClock()
	st, err := store.Open(cfg.StoreDriver, cfg.DatabaseURL, clock)
	if err != nil {
		log.Fatal("failed to open store: ", err)
	}
	defer st.Close()

	a := newApp(st, clock, cfg.JWTSecret, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatalf("❌ %s: %v", os.Args[1], err)
	}
}

func newApp(st store.Store, clock clockwork.Clock, secret string, out io.Writer) *app {
	catalog := services.NewCatalogService(st)
	ledger := services.NewLedgerService(st, catalog, services.NewRandomSource(), clock)
	return &app{
		catalog:  catalog,
		accounts: services.NewAccountService(ledger, clock, []byte(secret), services.NewAdminPolicy(nil)),
		out:      out,
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "seed-weapons":
		if err := a.catalog.Seed(ctx, models.DefaultWeapons); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✅ seeded %d weapons\n", len(models.DefaultWeapons))
	case "reset-accounts":
		n, err := a.accounts.ResetAccounts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✅ deleted %d accounts\n", n)
	case "set-admin":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		grant := true
		if len(args) == 3 {
			v, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid admin flag %q: %w", args[2], err)
			}
			grant = v
		}
		acc, err := a.accounts.SetAdmin(ctx, args[1], grant)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✅ %s admin=%t\n", acc.DisplayName, acc.IsAdmin)
	case "list-users":
		users, err := a.accounts.ListUsers(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGOLD\tDAMAGE\tADMIN\tLAST LOGIN")
		for _, u := range users {
			last := "-"
			if !u.LastLogin.IsZero() {
				last = u.LastLogin.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\n", u.ID, u.DisplayName, u.Gold, u.TotalDamage, u.IsAdmin, last)
		}
		return w.Flush()
	default:
		return errUsage
	}
	return nil
}
