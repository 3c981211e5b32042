// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package websocket streams job and catalog lifecycle events to connected
clients over gorilla/websocket.

Components:

  - Hub: tracks clients and fans messages out to them
  - Client: one connection with a read pump and a write pump
  - Relay: subscribes to the event publisher and feeds the hub

Hub and Relay are suture services. Events arrive in the same JSON shape the
publisher emits, wrapped in a Message:

	{"type":"job.finished","topic":"backstop.jobs","routine":"orders","data":{...}}

A client connecting with ?routine=orders only receives events for that
routine. Clients may send {"type":"ping"} and receive {"type":"pong"}.
A client whose send buffer fills up is disconnected rather than slowing
the hub.

Usage:

	hub := websocket.NewHub()
	relay := websocket.NewRelay(hub, publisher, events.TopicJobs, events.TopicCatalog)
	tree.AddAPIService(hub)
	tree.AddAPIService(relay)
*/
package websocket
