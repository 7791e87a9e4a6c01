// Package server implements the HTTP and WebSocket side of the space server.
//
// A Client is one connection and the user session bound to it: it joins a
// space, moves on the grid, chats and relays call signaling to peers. Rooms
// and direct calls live in the room registry; proximity sessions are owned by
// the proximity coordinator. Both are injected through Services.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, session handling, routing and HTTP handlers.
package server
