// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import "errors"

// errBadRequest marks malformed query parameters and bodies.
var errBadRequest = errors.New("bad request")
