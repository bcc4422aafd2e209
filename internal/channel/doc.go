/*
Package channel implements the push channel client.

A Client holds at most one live text/event-stream connection to
<base>/api/sse. Each message is decoded into a types.Envelope and handed to
an EnvelopeHandler in delivery order. Messages with an unknown type or an
unparseable body are dropped.

# Lifecycle

	client := channel.New(channel.Options{
		BaseURL: "http://localhost:3001",
		Handler: router,
		Bus:     bus,
	})
	client.Connect(ctx)
	defer client.Close()

Connect never fails. Transport errors move the client to Erroring and the
supervisor schedules another attempt with capped exponential backoff. The
wait is bound to the Connect context, so Close or a new Connect cancels a
pending retry before it can open anything.

States:

	Disconnected -> Connecting -> Connected
	      ^             |             |
	      |             v             v
	      +-------- Erroring <--------+

Every transition is published on the bus as an sse-status signal.
*/
package channel
