// Package socketclient is a small client for the langsock Unix socket
// protocol.
//
// A Client owns one connection and sends one request at a time:
//
//	client, err := socketclient.NewClient("/tmp/langsock.sock")
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//
//	resp, err := client.Send(ctx, socketclient.NewRequest(protocol.CommandStub, source))
//	if err != nil {
//		return err
//	}
//	if !resp.OK() {
//		return errors.New(resp.Message)
//	}
//
// Requests without a request id get a random UUID, and a response echoing a
// different id is reported as ErrRequestIDMismatch. Use SendRaw to write a
// hand-built frame, for example to probe how the server handles bad input.
package socketclient
