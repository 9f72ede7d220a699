// Package subscription implements the client side of the subscription
// protocol: waiting for the server's confirmation, streaming items through
// a bridge, and the ack/nack channel of persistent subscriptions.
//
// A session moves from AwaitingConfirmation to Streaming to Terminated and
// never back.
package subscription
