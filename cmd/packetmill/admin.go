package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/packetmill/packetmill/internal/adapter/postgres"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/domain/token"
	"github.com/packetmill/packetmill/internal/service"
)

// runAdmin dispatches admin subcommands (set-passphrase, token-create,
// token-list, token-revoke).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "set-passphrase":
		return runAdminSetPassphrase(args[1:])
	case "token-create":
		return runAdminTokenCreate(args[1:])
	case "token-list":
		return runAdminTokenList(args[1:])
	case "token-revoke":
		return runAdminTokenRevoke(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: packetmill admin <command> [options]

Commands:
  set-passphrase   Set the control-surface passphrase
  token-create     Mint a new API token
  token-list       List API tokens
  token-revoke     Revoke an API token
  help             Show this help message

Examples:
  packetmill admin set-passphrase
  packetmill admin token-create --name ci --expires 720h
  packetmill admin token-list
  packetmill admin token-revoke --id tok_01hq3...
`)
}

func loadAdminDeps() (*service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store)

	cleanup := func() {
		pool.Close()
	}
	return authSvc, cleanup, nil
}

func runAdminSetPassphrase(args []string) error {
	fs := flag.NewFlagSet("set-passphrase", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	pass, err := promptPassphrase("New passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	confirm, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	if pass != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := authSvc.SetPassphrase(context.Background(), pass); err != nil {
		return fmt.Errorf("set passphrase: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Passphrase updated.")
	return nil
}

func runAdminTokenCreate(args []string) error {
	fs := flag.NewFlagSet("token-create", flag.ContinueOnError)
	name := fs.String("name", "", "token name (required)")
	expires := fs.Duration("expires", 0, "token lifetime, e.g. 720h (0 = never expires)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	pass, err := promptPassphrase("Passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := authSvc.CreateToken(context.Background(), token.CreateRequest{
		Passphrase: pass,
		Name:       *name,
		ExpiresIn:  int(expires.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Token created: %s (id=%s)\n", res.Token.Name, res.Token.ID)
	fmt.Fprintln(os.Stderr, "Plaintext (shown once, store it now):")
	fmt.Println(res.PlainToken)
	return nil
}

func runAdminTokenList(args []string) error {
	fs := flag.NewFlagSet("token-list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	tokens, err := authSvc.ListTokens(context.Background())
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Println("No tokens found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPREFIX\tCREATED\tEXPIRES")
	for i := range tokens {
		expires := "never"
		if !tokens[i].ExpiresAt.IsZero() {
			expires = tokens[i].ExpiresAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tokens[i].ID, tokens[i].Name, tokens[i].TokenPrefix,
			tokens[i].CreatedAt.Format(time.RFC3339), expires)
	}
	return w.Flush()
}

func runAdminTokenRevoke(args []string) error {
	fs := flag.NewFlagSet("token-revoke", flag.ContinueOnError)
	id := fs.String("id", "", "token ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := authSvc.RevokeToken(context.Background(), *id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Token %s revoked.\n", *id)
	return nil
}

// promptPassphrase reads a passphrase from the terminal without echoing.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after passphrase input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
