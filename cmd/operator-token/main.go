package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/receipt-generator/pkg/auth"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

// operator-token prints a signed bearer token for the helpdesk API.
func main() {
	logg := logger.New(logger.Options{ServiceName: "operator-token"})

	operator := flag.String("operator", "", "operator name stored in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to RECEIPTS_HELPDESK_TOKEN_TTL")
	flag.Parse()

	_ = godotenv.Load()

	var cfg config.AuthConfig
	if err := envconfig.Process(config.EnvPrefix, &cfg); err != nil {
		logg.Error(context.Background(), "failed to load auth config", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		cfg.TokenTTL = *ttl
	}

	token, err := auth.MintOperatorToken(cfg, time.Now(), *operator)
	if err != nil {
		logg.Error(context.Background(), "failed to mint operator token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
