package transport

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// WebSocketConn adapts a websocket connection to the Socket contract.
// Message payloads ride as binary websocket messages.
func WebSocketConn(ctx context.Context, conn *websocket.Conn) Socket {
	return websocket.NetConn(ctx, conn, websocket.MessageBinary)
}

// DialWebSocket opens a Socket over a websocket endpoint.
func DialWebSocket(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket %s: %w", url, err)
	}
	return WebSocketConn(ctx, conn), nil
}

// AcceptWebSocket upgrades an HTTP request and returns the resulting Socket.
// The socket stays valid after the handler returns; callers close it when
// the connection terminates.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (Socket, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: accept websocket: %w", err)
	}
	return WebSocketConn(context.Background(), conn), nil
}
