// Package socketclient implements the client side of the two-phase exchange.
//
// A Requester walks through four states:
//
//	Init -> AwaitToken -> AwaitAck -> Done
//
// In Init it generates a fresh correlation identifier (a version 7 UUID). In
// AwaitToken it connects to the issuing port, sends the identifier and reads
// back one token. In AwaitAck it connects to the validating port and sends the
// identifier, the token and a message in one record. The server never
// answers the submission, so reaching Done only means the record was sent.
//
// Usage:
//
//	r, err := socketclient.NewRequester(socketclient.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	if err := r.Run(ctx); err != nil {
//		return err
//	}
//
// Any dial, send or receive failure aborts the run. There is no retry.
package socketclient
