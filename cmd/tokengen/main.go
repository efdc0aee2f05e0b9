// tokengen mints API tokens for operators, agents and the inbound mail relay
// using the same AUTH_* settings as the API server.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/spec-kit/supporthub/internal/auth"
	"github.com/spec-kit/supporthub/internal/config"
	"github.com/spec-kit/supporthub/internal/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var subject, role string
	var tenants []string
	var ttlMinutes int

	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "", "token subject (required)")
	flagSet.StringVar(&role, "role", string(domain.RoleAgent), "ADMIN, AGENT or RELAY")
	flagSet.StringSliceVar(&tenants, "tenant", nil, "tenant ids the token is scoped to (repeatable; empty grants all)")
	flagSet.IntVar(&ttlMinutes, "ttl", 0, "lifetime in minutes (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if subject == "" {
		return fmt.Errorf("--subject is required")
	}
	r := domain.Role(strings.ToUpper(role))
	if !r.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ttlMinutes <= 0 {
		ttlMinutes = cfg.Auth.AccessTokenTTLMinutes
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttlMinutes)
	token, expiresAt, err := tokens.GenerateToken(subject, r, tenants)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Println(token)
	return nil
}
