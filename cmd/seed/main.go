// Command seed fills the database with demo posts and engagement.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"momento/internal/config"
	"momento/internal/database"
	"momento/internal/middleware"
	"momento/internal/seed"
	"momento/internal/transcode"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.Users, "Number of distinct user ids to act as")
	numPosts := flag.Int("posts", defaults.Posts, "Number of posts to create")
	numEvents := flag.Int("events", defaults.Events, "Number of events to spread posts across")
	follows := flag.Int("follows", defaults.FollowsPerUser, "Follow attempts per user")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d posts, %d events, clean=%v\n", *numUsers, *numPosts, *numEvents, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ladder, err := transcode.ParseLadder(cfg.TranscodeLadder)
	if err != nil {
		log.Fatalf("Invalid TRANSCODE_LADDER: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Schema apply failed: %v", err)
	}

	s := seed.NewSeeder(db, ladder, seed.Options{
		Users:          *numUsers,
		Posts:          *numPosts,
		Events:         *numEvents,
		FollowsPerUser: *follows,
		MaxDays:        defaults.MaxDays,
		Seed:           *randSeed,
		Mix:            seed.DefaultMix,
	})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	// Identity is external; mint a development token so the seeded feed can be browsed.
	if !cfg.IsProduction() {
		verifier := middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		token, err := verifier.Issue(1, 24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Token mint failed: %v", err)
		}
		log.Printf("🔑 Bearer token for user 1 (24h): %s", token)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
}
