// Command analyze prints quick, human-readable heuristics about drill
// scenarios in a configs directory: room capacity, the farthest cells from
// the door, and lower bounds on how long a full evacuation can take given the
// door throughput and the rescuer pool.
//
// Usage: analyze [configs-dir]
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
)

// Analysis is the result of analyzing one scenario
type Analysis struct {
	Config   *config.DrillConfig
	Cells    int
	Capacity int

	// Farthest is the greatest Manhattan distance from any cell to the door,
	// FarthestCells the cells at that distance
	Farthest      int
	FarthestCells []engine.Position

	// Rings counts cells by their distance to the door
	Rings []int

	// MinSteps is the fewest move rounds needed to empty a full room: every
	// occupant has to pass through the door cell, which holds MaxPerCell at a
	// time
	MinSteps int

	// MinRescueTime is the shortest time the rescuer pool needs to mask a
	// full room
	MinRescueTime time.Duration
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", configDir, err)
		os.Exit(1)
	}

	for _, entry := range entries {
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		fmt.Printf("\n=== Analyzing %s ===\n", entry.Name())
		analyzeConfig(os.Stdout, filepath.Join(configDir, entry.Name()))
	}
}

func analyzeConfig(w io.Writer, path string) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(w, "Error loading scenario: %v\n", err)
		return
	}
	printAnalysis(w, analyze(cfg))
}

func analyze(cfg *config.DrillConfig) *Analysis {
	a := &Analysis{
		Config:   cfg,
		Cells:    cfg.Width * cfg.Height,
		Capacity: cfg.Width * cfg.Height * cfg.MaxPerCell,
		Rings:    make([]int, cfg.Width+cfg.Height-1),
	}

	for row := 0; row < cfg.Height; row++ {
		for col := 0; col < cfg.Width; col++ {
			p := engine.Position{Row: row, Col: col}
			d := engine.ManhattanDistance(p, cfg.Door)
			a.Rings[d]++
			switch {
			case d > a.Farthest:
				a.Farthest = d
				a.FarthestCells = []engine.Position{p}
			case d == a.Farthest:
				a.FarthestCells = append(a.FarthestCells, p)
			}
		}
	}
	a.Rings = a.Rings[:a.Farthest+1]

	// The last group through the door still has to walk from the far corner
	batches := (a.Capacity + cfg.MaxPerCell - 1) / cfg.MaxPerCell
	a.MinSteps = batches + a.Farthest

	rounds := (a.Capacity + cfg.Rescuers - 1) / cfg.Rescuers
	a.MinRescueTime = time.Duration(rounds) * time.Duration(cfg.MaskDuration)

	return a
}

func printAnalysis(w io.Writer, a *Analysis) {
	cfg := a.Config
	fmt.Fprintf(w, "Name: %s\n", cfg.Name)
	if cfg.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", cfg.Description)
	}
	fmt.Fprintf(w, "Room: %d x %d (%d cells)\n", cfg.Width, cfg.Height, a.Cells)
	fmt.Fprintf(w, "Max Per Cell: %d\n", cfg.MaxPerCell)
	fmt.Fprintf(w, "Capacity: %d occupants\n", a.Capacity)
	fmt.Fprintf(w, "Door: %s\n", cfg.Door)
	fmt.Fprintf(w, "Rescuers: %d\n", cfg.Rescuers)

	fmt.Fprintf(w, "Farthest Distance: %d steps from", a.Farthest)
	for i, p := range a.FarthestCells {
		if i == 5 {
			fmt.Fprintf(w, " ... and %d more", len(a.FarthestCells)-5)
			break
		}
		fmt.Fprintf(w, " %s", p)
	}
	fmt.Fprintln(w)

	// The door only admits a few cells per ring, so narrow rings are the choke points
	narrowest := 1
	for d := 1; d < len(a.Rings); d++ {
		if a.Rings[d] < a.Rings[narrowest] {
			narrowest = d
		}
	}
	if len(a.Rings) > 1 {
		fmt.Fprintf(w, "Narrowest Ring: %d cells at distance %d\n", a.Rings[narrowest], narrowest)
	}

	fmt.Fprintf(w, "Minimum Move Rounds (full room): %d\n", a.MinSteps)
	if cfg.MaskDuration > 0 {
		fmt.Fprintf(w, "Minimum Rescue Time (full room): %s\n", a.MinRescueTime)
	}

	if cfg.Rescuers > a.Capacity {
		fmt.Fprintf(w, "⚠️  WARNING: %d rescuers but at most %d occupants fit under the cap\n", cfg.Rescuers, a.Capacity)
	} else {
		fmt.Fprintf(w, "✅ %.1f occupants per rescuer at capacity\n", float64(a.Capacity)/float64(cfg.Rescuers))
	}
}
