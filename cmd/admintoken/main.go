// Command admintoken prints a bearer token for the operator endpoints
// (/configure, /session_data, /new_oauth_creds).
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"orthobox-backend/internal/config"
	"orthobox-backend/internal/middleware"
)

func main() {
	var (
		subject  string
		lifetime time.Duration
	)
	flagSet := pflag.NewFlagSet("admintoken", pflag.ExitOnError)
	flagSet.StringVarP(&subject, "subject", "s", "admin", "name recorded in the token")
	flagSet.DurationVarP(&lifetime, "ttl", "t", 24*time.Hour, "token lifetime")
	flagSet.Parse(os.Args[1:])

	cfg := config.Load()
	token, err := middleware.NewJWTAuth(cfg.SecretKey).GenerateAdminToken(subject, lifetime)
	if err != nil {
		log.Fatalf("✗ token generation failed: %v", err)
	}
	fmt.Println(token)
}
