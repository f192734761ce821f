package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/auth/session"
	"github.com/farmlink/farmlink-backend/pkg/bootstrap"
	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// dev-token mints an access token for local testing and registers its
// session in redis so the api accepts it when sessions are enforced.
func main() {
	userFlag := flag.String("user", "", "user id (uuid); random when empty")
	roleFlag := flag.String("role", string(enums.ActorRoleBuyer), "role: buyer|farmer|admin")
	flag.Parse()

	proc, err := bootstrap.Start("dev-token")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(proc, *userFlag, *roleFlag); err != nil {
		proc.Close()
		fmt.Fprintf(os.Stderr, "dev-token: %v\n", err)
		os.Exit(1)
	}
	proc.Close()
}

func run(proc *bootstrap.Process, rawUser, rawRole string) error {
	cfg := proc.Config
	if cfg.App.IsProd() {
		return errors.New("disabled in prod")
	}
	role, err := enums.ParseActorRole(rawRole)
	if err != nil {
		return fmt.Errorf("invalid -role: %w", err)
	}
	userID := uuid.New()
	if rawUser != "" {
		if userID, err = uuid.Parse(rawUser); err != nil {
			return fmt.Errorf("invalid -user: %w", err)
		}
	}

	jti := uuid.NewString()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now().UTC(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    jti,
	})
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	if cfg.JWT.RequireSession {
		ctx := context.Background()
		redisClient, err := proc.Redis(ctx)
		if err != nil {
			return err
		}
		sessions, err := session.NewManager(redisClient)
		if err != nil {
			return err
		}
		ttl := time.Duration(cfg.JWT.ExpirationMinutes) * time.Minute
		if err := sessions.Register(ctx, jti, userID, ttl); err != nil {
			return fmt.Errorf("register session: %w", err)
		}
	}

	fmt.Printf("user:  %s\nrole:  %s\ntoken: %s\n", userID, role, token)
	return nil
}
