// Package websocket streams validation job events to browser clients.
//
// Each client subscribes to one topic, the artifact filename whose job it
// follows, and receives only that topic's events. An empty topic receives
// everything. Messages are JSON envelopes:
//
//	{"type":"validation:progress","topic":"3xY...csv","data":{...},"timestamp":"..."}
//
// Publishing never blocks the caller; slow clients are disconnected.
package websocket
