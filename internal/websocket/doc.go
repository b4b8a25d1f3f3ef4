// Package websocket streams run events to browser clients.
//
// Hub keeps the connected clients and implements the run event sink: every
// domain.RunEvent it receives is wrapped in a Message envelope and broadcast
// to all clients. A client whose send buffer is full is disconnected rather
// than allowed to stall the hub. Handler upgrades HTTP requests on /ws.
package websocket
