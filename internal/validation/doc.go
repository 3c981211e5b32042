// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by configuration loading and the
// HTTP API. Field names in errors are the struct's koanf, yaml or json tag
// names, so a message points at the key the user actually wrote.
//
// Custom tags:
//   - routine_name: lower-case letters, digits, '-' and '_', starting with a
//     letter or digit. Routine names become storage key prefixes.
//   - partition: an integer in [0, 4096)
//
// Example usage:
//
//	type RoutineConfig struct {
//	    Name      string `koanf:"name" validate:"required,routine_name"`
//	    Parallel  int    `koanf:"parallel" validate:"min=0,max=256"`
//	}
//
//	if err := validation.ValidateStruct(&rc); err != nil {
//	    return fmt.Errorf("routine %s: %w", rc.Name, err)
//	}
//
// See Also:
//   - github.com/go-playground/validator/v10: Underlying library
package validation
