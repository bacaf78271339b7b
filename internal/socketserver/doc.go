// Package socketserver implements the langsock Unix domain socket server.
//
// # Architecture
//
//   - Server: binds the socket path, runs the accept loop and spawns one
//     connection worker per accepted connection
//   - Registry: the set of every open socket (listener and connections),
//     guarded by one mutex and closed exactly once on shutdown
//   - conn: a connection worker cycling through AwaitingFrame, Dispatching
//     and Responding until the peer disconnects
//   - Shutdown: the idempotent teardown shared by signals, the liveness
//     monitor and the SocketWatcher
//
// # Message Protocol
//
// Requests and responses are newline-delimited JSON objects, see package
// protocol. Requests on one connection are answered strictly in order.
// Malformed frames, unknown commands and handler failures are answered with
// an error response and the connection stays open. Only I/O errors and
// disconnects end a connection.
//
// # Usage
//
//	server, err := socketserver.NewServer(opts, handlers)
//	if err != nil {
//		return err
//	}
//	if err := server.Listen(ctx); err != nil {
//		return err // errors.Is(err, socketserver.ErrSocketInUse)
//	}
//	shutdown := socketserver.NewShutdown(server, nil)
//	go server.Serve()
//
//	<-sigCh
//	shutdown.Shutdown("interrupted")
package socketserver
