// Package event provides the event types exchanged with the event store.
//
// This package defines:
//   - StreamIdentifier: an encoded stream name, comparable and usable as a map key
//   - EventData: an event proposed for appending, with a client-assigned ID
//   - RecordedEvent: an event as stored by the server, with its revision and position
//   - Envelope: the unit yielded by reads and subscriptions (event, resolved link, commit position)
//   - SubscriptionItem: what a volatile subscription yields (events, checkpoints, caught-up markers)
//
// All values are immutable after construction: constructors copy the byte
// slices they are given so later mutation by the caller has no effect.
//
// Example usage:
//
//	id, err := event.NewStreamIdentifier("orders-1")
//	if err != nil {
//		return err
//	}
//
//	data := event.NewJSONEvent("OrderPlaced", []byte(`{"total": 42}`))
//
//	for envelope, err := range stream.All() {
//		if err != nil {
//			return err
//		}
//		fmt.Println(envelope.Resolved().Revision, envelope.Resolved().Type)
//	}
package event
