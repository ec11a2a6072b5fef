package main

import (
	"flag"
	"log"
	"time"

	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/subsim"
)

func main() {
	id := flag.String("id", "sim-1", "submarine identifier")
	host := flag.String("host", "127.0.0.1", "gateway fleet host")
	port := flag.Int("port", 8152, "gateway fleet port")
	x := flag.Int("x", 10, "start position x")
	y := flag.Int("y", 10, "start position y")
	depth := flag.Int("depth", 10, "start depth")
	interval := flag.Duration("interval", 5*time.Second, "measurement interval")
	flag.Parse()

	sub := subsim.New(subsim.Config{
		ID:              *id,
		Host:            *host,
		Port:            *port,
		StartPos:        protocol.Vec{X: *x, Y: *y, Z: -*depth},
		MeasureInterval: *interval,
	})

	if err := sub.Run(); err != nil {
		log.Fatalf("subsim: %v", err)
	}
	log.Printf("subsim: %s finished", *id)
}
