// Command set-role grants or revokes a back-office role from the shell. It
// is how the first admin account gets created.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"soulease/backend/internal/config"
	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/user"
	"soulease/backend/internal/firebase"
	"soulease/backend/internal/logging"
)

const cliActor = "cli:set-role"

func main() {
	uid := flag.String("uid", "", "target firebase uid")
	email := flag.String("email", "", "target account email (instead of -uid)")
	role := flag.String("role", user.RoleAdmin, "role to grant: admin or therapist")
	therapistID := flag.String("therapist-id", "", "roster entry for -role=therapist")
	revoke := flag.Bool("revoke", false, "revoke the role of -uid instead of granting")
	flag.Parse()
	if *uid == "" && *email == "" {
		log.Fatal("uid or email is required: -uid=xxxxx or -email=a@b.c")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx := context.Background()
	fb, err := firebase.NewClients(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("firebase: %v", err)
	}
	defer fb.Close()

	svc := admin.NewService(fb.Auth, user.NewRepo(fb.Firestore), logger)

	var p *user.Profile
	if *revoke {
		if *uid == "" {
			log.Fatal("-revoke needs -uid")
		}
		p, err = svc.Revoke(ctx, cliActor, *uid)
	} else {
		in := admin.GrantInput{UID: *uid, Email: *email, Role: *role, TherapistID: *therapistID}
		in.Trim()
		p, err = svc.Grant(ctx, cliActor, in)
	}
	if err != nil {
		log.Fatalf("set role: %v", err)
	}

	fmt.Printf("ok: %s is now %s\n", p.UID, p.Role)
}
