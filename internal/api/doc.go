// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package api provides the HTTP status and command API, routed with chi.

# Endpoints

	GET    /healthz                                   liveness
	GET    /metrics                                   Prometheus
	GET    /v1/routines                               configured routines
	GET    /v1/routines/{routine}/backups             catalog (?kind=&from=&to=)
	POST   /v1/routines/{routine}/backups/{kind}      start a full or incremental backup (202)
	GET    /v1/routines/{routine}/restore/chain       backups a restore would replay (?kind=&target=)
	POST   /v1/routines/{routine}/restore             start a restore (202)
	GET    /v1/routines/{routine}/job                 current or last job snapshot
	DELETE /v1/routines/{routine}/job                 cancel the running job
	GET    /v1/routines/{routine}/retention           retention preview
	GET    /v1/schedule                               upcoming scheduled backups
	GET    /v1/events                                 websocket lifecycle event stream (?routine=)

Job control endpoints are rate limited per client IP (httprate). CORS is
off unless origins are configured.

# Response Format

Every /v1 response is an APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "CONFLICT", "message": "..."}}

# Error Mapping

  - unknown routine, no job: 404 NOT_FOUND
  - job already running: 409 CONFLICT
  - no base backup: 422 NO_BASE_BACKUP
  - malformed request: 400 BAD_REQUEST / VALIDATION_FAILED
  - anything else: 500 INTERNAL_ERROR
*/
package api
