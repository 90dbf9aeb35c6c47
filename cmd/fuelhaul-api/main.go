// README: Entry point; loads config, wires services, starts the HTTP server and the reminder dispatcher.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuelhaul/internal/config"
	fuelhttp "fuelhaul/internal/http"
	"fuelhaul/internal/modules/account"
	"fuelhaul/internal/modules/allocation"
	"fuelhaul/internal/modules/catalog"
	"fuelhaul/internal/modules/fleet"
	"fuelhaul/internal/modules/location"
	"fuelhaul/internal/modules/matching"
	"fuelhaul/internal/modules/notify"
	"fuelhaul/internal/modules/order"
	"fuelhaul/internal/modules/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("storage init: %v", err)
	}
	defer st.close()

	edge, err := openEdge(ctx, cfg)
	if err != nil {
		log.Fatalf("edge init: %v", err)
	}
	defer edge.close()

	mode := allocation.ModeSplit
	if cfg.Matching.ExclusiveCompartments {
		mode = allocation.ModeExclusive
	}

	accountSvc := account.NewService(st.accounts)
	fleetSvc := fleet.NewService(st.fleet)
	catalogSvc := catalog.NewService(st.catalog)
	locationSvc := location.NewService(st.feed, st.history, cfg.Matching.PositionMaxAge)
	reminderSvc := reminder.NewService(st.reminders, cfg.Reminder)
	dispatcher := notify.NewDispatcher(edge.sms, edge.live, st.inbox)

	if err := importDepots(ctx, catalogSvc, cfg.Catalog.DepotsFile); err != nil {
		log.Fatalf("depot catalog: %v", err)
	}

	orderSvc := order.NewService(order.Deps{
		Store:    st.orders,
		Tx:       st.tx,
		Fleet:    fleetSvc,
		Contacts: accountSvc,
		Notifier: dispatcher,
		Events:   edge.events,
		Mode:     mode,
	})
	matchingSvc := matching.NewService(matching.Deps{
		Orders:    orderSvc,
		Fleet:     fleetSvc,
		Catalog:   catalogSvc,
		Positions: locationSvc,
		Reminders: reminderSvc,
		Contacts:  accountSvc,
		Notifier:  dispatcher,
		Locker:    st.locker,
		Tx:        st.tx,
		Config:    cfg.Matching,
	})

	router := fuelhttp.NewRouter(fuelhttp.RouterDeps{
		Order:    orderSvc,
		Matching: matchingSvc,
		Fleet:    fleetSvc,
		Catalog:  catalogSvc,
		Accounts: accountSvc,
		Location: locationSvc,
		Notify:   dispatcher,
		Verifier: edge.verifier,
	})
	server := fuelhttp.NewServer(cfg.HTTP.Addr, router)

	go reminderSvc.RunDispatcher(ctx, matchingSvc)

	errc := make(chan error, 1)
	go func() { errc <- server.Run() }()

	select {
	case err := <-errc:
		if err != nil {
			log.Printf("http: server stopped: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
}

func importDepots(ctx context.Context, svc *catalog.Service, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := svc.ImportDepots(ctx, f)
	if err != nil {
		return err
	}
	log.Printf("catalog: imported %d depots from %s", n, path)
	return nil
}
