/*
Package event provides the local signal bus for navsync.

The bus decouples the navigation router and the channel client from any
number of listeners (page listeners, the global notifier, the local SSE
feed) without relying on process-wide state: every composition root owns
its own Bus.

# Event Types

  - sse-navigation: an accepted navigation request (NavigationSignal)
  - sse-status: the push connection changed state (StatusSignal)

# Delivery

Publish is synchronous. Subscribers run on the publisher's goroutine in
subscription order, and Publish returns after the last one. There is no
buffering: a subscriber registered after a publish never sees it.

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.SubscribeNavigation(func(sig event.NavigationSignal) {
		log.Info().Str("route", sig.Route).Msg("navigation")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

Publish iterates a snapshot of the subscriber list, so a subscriber may
unsubscribe itself or others, or subscribe new handlers, while a publish is
in flight. An unsubscribed handler is skipped even if it is still in the
snapshot. A panicking subscriber is logged and skipped.

Subscribers still run on the publisher's goroutine, which for navigation
signals is the channel client's read loop. They MUST:

  - Complete quickly
  - Use non-blocking channel sends (select with default case)
  - Never acquire locks that the publisher might hold
*/
package event
