// Package config provides configuration management for the evacuation drill.
//
// The config package handles:
//   - Built-in defaults for every drill parameter
//   - Loading drill scenarios from JSON or YAML files
//   - Configuration validation
//   - Scenario discovery and listing
//
// Configuration Format:
//
// Scenarios are stored as JSON or YAML files in the config directory. Each
// scenario defines the room dimensions, the per-cell cap, the rescuer pool
// size, the door cell, an optional mask donning time, and the listen
// addresses. Fields missing from a file keep their default value.
//
//	name: lecture-hall
//	description: Large hall, two rescuers, door on the front wall
//	width: 20
//	height: 12
//	max_per_cell: 2
//	rescuers: 2
//	door: {row: 0, col: 10}
//	mask_duration: 250ms
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	drill, err := manager.LoadConfig("lecture-hall")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Validation:
//
// A configuration is rejected unless the room is buildable, the door lies on
// the room boundary, the ports are in range and the codec is known.
package config
