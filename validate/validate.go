// Command validate checks drill scenario files (JSON or YAML) in a configs
// directory. It checks:
//   - the file parses and passes the drill's own validation
//   - the scenario name is set and matches the file name
//   - the drill and monitor ports do not collide
//   - the rescuer count is not larger than the room can ever hold
//
// Usage: validate [configs-dir]
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
)

// ValidationResult captures the outcome of validating a single file.
// Notes holds informational lines; Errors is empty when Valid is true.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Notes    []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) note(format string, args ...interface{}) {
	r.Notes = append(r.Notes, "✓ "+fmt.Sprintf(format, args...))
}

// validateScenario loads a single scenario file and reports what it found
func validateScenario(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	cfg, err := config.LoadFile(filePath)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	stem := strings.TrimSuffix(result.File, filepath.Ext(result.File))
	if cfg.Name != stem {
		result.warn("name %q differs from file name %q; the scenario is loaded by file name", cfg.Name, stem)
	}

	if cfg.Port != 0 && cfg.Port == cfg.MonitorPort {
		result.fail("port and monitor_port are both %d", cfg.Port)
	}

	cells := cfg.Width * cfg.Height
	capacity := cells * cfg.MaxPerCell
	if cfg.Rescuers > capacity {
		result.warn("%d rescuers for a room that holds at most %d occupants under the cap", cfg.Rescuers, capacity)
	}

	exits := engine.NewDoorMover(cfg.Width, cfg.Height, cfg.Door).ExitDirections()
	names := make([]string, len(exits))
	for i, d := range exits {
		names[i] = string(d)
	}

	result.note("Room %dx%d, %d cells, up to %d per cell", cfg.Width, cfg.Height, cells, cfg.MaxPerCell)
	result.note("Door at %s, exits: %s", cfg.Door, strings.Join(names, ", "))
	result.note("%d rescuers, mask duration %s", cfg.Rescuers, time.Duration(cfg.MaskDuration))
	result.note("Codec %s, port %d, monitor port %d", cfg.Codec, cfg.Port, cfg.MonitorPort)

	return result
}

// scenarioFiles lists the scenario files in dir in name order
func scenarioFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := scenarioFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No scenario files in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateScenario(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Notes {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Println("  ❌ " + err)
			}
		}
		for _, w := range result.Warnings {
			fmt.Println("  ⚠️  " + w)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All scenarios are valid!")
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
