// Package launcher starts submarine agent processes. An agent is a
// self-contained jar that dials the gateway's fleet port on startup and
// the ocean server's submarine port for world state.
package launcher

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"
)

// startupGrace is how long a freshly started agent gets to prove it is
// alive. An agent that exits within this window is treated as failed
// regardless of its exit code.
const startupGrace = 1 * time.Second

// Launcher spawns agent processes.
type Launcher struct {
	JarPath string

	OceanHost string
	OceanPort int
	ShipHost  string
	ShipPort  int
}

// Start launches one agent for the given submarine id. It returns after
// the startup grace period; a process still running by then counts as
// started. The process is not tracked further, it deregisters itself by
// closing its fleet connection.
func (l *Launcher) Start(subID string) error {
	if l.JarPath == "" {
		return fmt.Errorf("launcher: no agent jar configured")
	}

	cmd := exec.Command("java", "-jar", l.JarPath,
		"-shipid", subID,
		"-shiphost", l.ShipHost,
		"-shipport", strconv.Itoa(l.ShipPort),
		"-oceanhost", l.OceanHost,
		"-oceanport", strconv.Itoa(l.OceanPort),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launcher: start agent %s: %w", subID, err)
	}
	log.Printf("launcher: started agent %s (pid %d)", subID, cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("launcher: agent %s exited during startup: %w", subID, err)
		}
		return fmt.Errorf("launcher: agent %s exited during startup", subID)
	case <-time.After(startupGrace):
	}

	// Reap the process when it eventually exits.
	go func() {
		if err := <-done; err != nil {
			log.Printf("launcher: agent %s exited: %v", subID, err)
		} else {
			log.Printf("launcher: agent %s exited", subID)
		}
	}()
	return nil
}
