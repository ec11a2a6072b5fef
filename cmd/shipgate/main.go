package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/oceanlab/shipgate/internal/api"
	"github.com/oceanlab/shipgate/internal/config"
	"github.com/oceanlab/shipgate/internal/dashboard"
	"github.com/oceanlab/shipgate/internal/emergency"
	"github.com/oceanlab/shipgate/internal/eventlog"
	"github.com/oceanlab/shipgate/internal/fleet"
	"github.com/oceanlab/shipgate/internal/gateway"
	"github.com/oceanlab/shipgate/internal/launcher"
	"github.com/oceanlab/shipgate/internal/picture"
	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/store"
	"github.com/oceanlab/shipgate/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	launchOnStart := flag.Bool("launch", false, "launch the ship into the ocean on startup")
	sectorFlag := flag.String("sector", "2,3", "launch sector as x,y")
	dirFlag := flag.String("dir", "1,0", "launch direction as x,y")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: open %s: %v", cfg.DBPath, err)
	}
	defer st.Close()

	sink, err := picture.NewSink(cfg.PicturesDir)
	if err != nil {
		log.Fatalf("pictures: %v", err)
	}

	elog := eventlog.New(cfg.RedisAddr)
	defer elog.Close()

	hub := api.NewHub()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go hub.Run(ctx)

	// Every internal event goes to the WebSocket clients and the Redis
	// stream mirror.
	events := func(event string, payload any) {
		hub.BroadcastEvent(event, payload)
		elog.Record(event, payload)
	}

	link, err := upstream.Dial(cfg.OceanHost, cfg.OceanShipPort, events)
	if err != nil {
		log.Fatalf("upstream: %v", err)
	}
	defer link.Close()

	fleetSrv := fleet.NewServer(fleet.Config{
		Recorder: st,
		Pictures: sink,
		OwnerID:  func() string { return link.State().ShipID },
		Events:   events,
	})
	if err := fleetSrv.Start(cfg.FleetPort); err != nil {
		log.Fatalf("fleet: %v", err)
	}
	defer fleetSrv.Close()

	var agents *launcher.Launcher
	if cfg.AgentJar != "" {
		agents = &launcher.Launcher{
			JarPath:   cfg.AgentJar,
			OceanHost: cfg.OceanHost,
			OceanPort: cfg.OceanSubPort,
			ShipHost:  "127.0.0.1",
			ShipPort:  cfg.FleetPort,
		}
	}

	gw := gateway.New(link, fleetSrv, agents)

	if *launchOnStart {
		sector, err := parseVec2(*sectorFlag)
		if err != nil {
			log.Fatalf("bad -sector: %v", err)
		}
		dir, err := parseVec2(*dirFlag)
		if err != nil {
			log.Fatalf("bad -dir: %v", err)
		}
		if err := gw.Launch(cfg.ShipName, sector, dir); err != nil {
			log.Fatalf("launch: %v", err)
		}
		log.Printf("main: launching ship %q at sector %v", cfg.ShipName, sector)
	}

	// An emergency surfaces the whole fleet and is visible to every
	// observer until cleared.
	emerg := emergency.New(func(s emergency.State) {
		log.Printf("main: emergency surface: %s (by %s)", s.Reason, s.Initiator)
		gw.SurfaceAll()
		events("emergency", s)
	})

	h := &api.Handler{Gateway: gw, Store: st, Hub: hub, Emergency: emerg}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.Handle("/", dashboard.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("main: http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("main: http server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Println("main: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: http shutdown: %v", err)
	}
}

func parseVec2(s string) (protocol.Vec2D, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return protocol.Vec2D{}, fmt.Errorf("want x,y got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return protocol.Vec2D{}, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return protocol.Vec2D{}, err
	}
	return protocol.Vec2D{X: x, Y: y}, nil
}
