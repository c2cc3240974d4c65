// README: Entry point; loads config, wires services, starts HTTP server and sweeps.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bookferry/internal/config"
	httptransport "bookferry/internal/http"
	"bookferry/internal/infra"
	"bookferry/internal/modules/match"
	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/modules/user"
	"bookferry/internal/payment"
	"bookferry/internal/places"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis)

	var cities places.Canonicalizer
	if cfg.Places.APIKey != "" {
		cities, err = places.NewPlacesService(cfg.Places.APIKey)
		if err != nil {
			log.Fatalf("places init: %v", err)
		}
	} else {
		cities = places.NewLocal()
	}

	userStore := user.NewStore(dbPool)

	requestStore := request.NewStore(dbPool)
	requestSvc := request.NewService(requestStore, cities)

	tripStore := trip.NewStore(dbPool)
	tripSvc := trip.NewService(tripStore, cities)

	gateway := payment.NewRESTGateway(cfg.Gateway)

	matchStore := match.NewPGStore(dbPool)
	matchSvc := match.NewService(matchStore, requestStore, tripStore, gateway, cfg.Matching.ProposalTTL)

	matchingCache := matching.NewStore(redisClient, cfg.Matching.DashboardCacheTTL)
	matchingSvc := matching.NewService(requestStore, tripStore, matchSvc, userStore, matchingCache)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier: verifier,
		Users:    userStore,
		Requests: requestSvc,
		Trips:    tripSvc,
		Matching: matchingSvc,
		Matches:  matchSvc,
		HasRole:  userStore.HasRole,
	})

	go matchSvc.RunExpirySweep(ctx, cfg.Matching.SweepTick)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("bookferry-api listening on %s", cfg.Server.Addr())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
