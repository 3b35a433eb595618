package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"tutormarket/backend/internal/config"
	"tutormarket/backend/internal/domain/user"
	"tutormarket/backend/internal/firebase"
	"tutormarket/backend/internal/logger"
)

func main() {
	uid := flag.String("uid", "", "target firebase uid")
	role := flag.String("role", "", "student | teacher | admin")
	flag.Parse()
	if *uid == "" {
		log.Fatal("uid is required: -uid=xxxxx")
	}
	claims, err := claimsFor(*role)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Env, "")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, cfg)
	if err != nil {
		lg.Fatal("firebase.NewApp", zap.Error(err))
	}
	authClient, err := firebase.NewAuthClient(ctx, app)
	if err != nil {
		lg.Fatal("app.Auth", zap.Error(err))
	}
	fs, err := firebase.NewFirestore(ctx, app)
	if err != nil {
		lg.Fatal("app.Firestore", zap.Error(err))
	}
	defer fs.Close()

	if err := authClient.SetCustomUserClaims(ctx, *uid, claims); err != nil {
		lg.Fatal("SetCustomUserClaims", zap.Error(err))
	}
	if err := user.NewRepo(fs.Client).SetRole(ctx, *uid, *role); err != nil {
		lg.Fatal("update users doc", zap.Error(err))
	}

	lg.Info("claims set", zap.String("uid", *uid), zap.String("role", *role))
}
