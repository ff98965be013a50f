// Command devtoken issues a signed access token for local testing and can
// seed the token's user as an active member of a team.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/Rrens/collab-hub/internal/logger"
	"github.com/Rrens/collab-hub/internal/repository"
	"github.com/Rrens/collab-hub/internal/security"
	"github.com/Rrens/collab-hub/internal/service"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	userFlag := flag.String("user", "", "user ID (random when empty)")
	email := flag.String("email", "dev@example.com", "email claim")
	name := flag.String("name", "Developer", "name claim")
	teamFlag := flag.String("team", "", "team ID to seed membership in")
	teamName := flag.String("team-name", "dev", "team name used when the team is created")
	role := flag.String("role", domain.RoleMember, "member role")
	seed := flag.Bool("seed", false, "add the user to -team in the configured store")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if _, err := logger.Setup(config.LoggingConfig{Level: "warn", Format: "console"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret (JWT_SECRET) is required")
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			log.Fatal().Err(err).Msg("Invalid -user")
		}
	}

	var teams []uuid.UUID
	if *teamFlag != "" {
		teamID, err := uuid.Parse(*teamFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -team")
		}
		teams = append(teams, teamID)

		if *seed {
			if err := seedMember(cfg, teamID, *teamName, userID, *role); err != nil {
				log.Fatal().Err(err).Msg("Failed to seed membership")
			}
		}
	}

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	token, err := jwtManager.GenerateAccessToken(userID, *email, *name, teams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("user:    %s\n", userID)
	fmt.Printf("expires: %s\n", jwtManager.AccessTokenTTL())
	fmt.Printf("token:   %s\n", token)
}

func seedMember(cfg *config.Config, teamID uuid.UUID, teamName string, userID uuid.UUID, role string) error {
	ctx := context.Background()

	// Membership lives in the SQL store only
	cfg.Redis.Enabled = false
	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	teams := service.NewTeamService(stores.Membership, nil, stores.Sessions, stores.Operations)
	return teams.EnsureMember(ctx, teamID, teamName, userID, role)
}
