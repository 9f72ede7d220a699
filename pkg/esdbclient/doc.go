// Package esdbclient is the public client for an event store cluster.
//
// A Client picks a node for every call, runs the operation under the
// configured deadline and returns results in the shapes of pkg/event. Reads
// are pull-based streams; subscriptions are sessions that stay open until
// closed.
//
//	client, err := esdbclient.NewClient(esdbclient.Config{
//		Endpoints: []string{"localhost:2113"},
//		Insecure:  true,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	stream, err := client.ReadStream(ctx, "orders-1", esdbclient.ReadStreamOptions{MaxCount: 10})
package esdbclient
