package e2e_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operate-experience/navsync/citest/testutil"
	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

var _ = Describe("Connection", func() {
	var relay *testutil.TestRelay

	BeforeEach(func() {
		var err error
		relay, err = testutil.StartRelay(testutil.WithHeartbeat(100 * time.Millisecond))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(relay.Stop)
	})

	Describe("history resync", func() {
		It("should adopt the relay history on connect without navigating", func() {
			appID := testutil.UniqueAppID()
			for i := 0; i < 12; i++ {
				r := testutil.ReportRoutes[i%len(testutil.ReportRoutes)]
				_, err := relay.Client().Navigate(ctx, appID, r, nil)
				Expect(err).NotTo(HaveOccurred())
			}

			agent, err := testutil.StartAgent(relay.BaseURL, testutil.WithAppID(appID))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(agent.Stop)

			Eventually(func() []types.NavigationEvent {
				events, _ := agent.Client().History(ctx)
				return events
			}).Should(HaveLen(10))

			events, err := agent.Client().History(ctx)
			Expect(err).NotTo(HaveOccurred())
			// 12 events rotated over 4 routes; the newest is index 11.
			Expect(events[0].Route).To(Equal(testutil.ReportRoutes[11%len(testutil.ReportRoutes)]))

			Expect(currentPath(agent)()).To(Equal(route.Welcome))
			st, err := agent.Client().Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Router.Accepted).To(BeZero())
		})
	})

	Describe("relay restart", func() {
		It("should reconnect with a new identity and resync", func() {
			agent, appID := startAgent(relay.BaseURL)

			_, err := relay.Client().Navigate(ctx, appID, route.DSCRTrend, nil)
			Expect(err).NotTo(HaveOccurred())
			Eventually(currentPath(agent)).Should(Equal(route.DSCRTrend))

			first := agent.App.ChannelStatus().ClientID
			Expect(first).NotTo(BeEmpty())

			Expect(relay.Restart()).To(Succeed())

			Eventually(func() bool {
				st := agent.App.ChannelStatus()
				return st.Connected && st.ClientID != "" && st.ClientID != first
			}).Should(BeTrue())

			// the fresh relay has no history to offer
			Eventually(agent.App.EventHistory).Should(BeEmpty())
			Expect(currentPath(agent)()).To(Equal(route.DSCRTrend))

			_, err = relay.Client().Navigate(ctx, appID, route.Y14Report, nil)
			Expect(err).NotTo(HaveOccurred())
			Eventually(currentPath(agent)).Should(Equal(route.Y14Report))
		})

		It("should report the outage on the local status stream", func() {
			agent, _ := startAgent(relay.BaseURL)

			before := agent.App.Bus().Len()

			sse := agent.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitForEvent(string(event.StatusChanged), 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Eventually(agent.App.Bus().Len).Should(BeNumerically(">", before))

			Expect(relay.Stop()).To(Succeed())

			evt, err := sse.WaitFor(func(evt testutil.SSEEvent) bool {
				if evt.Type != string(event.StatusChanged) {
					return false
				}
				var sig event.StatusSignal
				return evt.Decode(&sig) == nil && !sig.Connected
			}, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(evt.Data).NotTo(BeEmpty())

			Expect(relay.Restart()).To(Succeed())
			Expect(agent.WaitConnected(5 * time.Second)).To(Succeed())
		})
	})

	Describe("relay stream", func() {
		It("should open with connection and history envelopes", func() {
			appID := testutil.UniqueAppID()
			_, err := relay.Client().Navigate(ctx, appID, route.Y14Report, nil)
			Expect(err).NotTo(HaveOccurred())

			sse := relay.SSEClient()
			Expect(sse.Connect(ctx, "/api/sse")).To(Succeed())
			defer sse.Close()

			env, err := sse.WaitForEnvelope(types.EnvelopeConnection, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.(types.ConnectionAck).ClientID).NotTo(BeEmpty())

			env, err = sse.WaitForEnvelope(types.EnvelopeHistory, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			history := env.(types.History)
			Expect(history.Events).To(HaveLen(1))
			Expect(history.Events[0].TargetAppID).To(Equal(appID))

			_, err = relay.Client().Navigate(ctx, appID, route.DSCRTrend, nil)
			Expect(err).NotTo(HaveOccurred())
			env, err = sse.WaitForEnvelope(types.EnvelopeNavigation, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.(types.Navigation).Event.Route).To(Equal(route.DSCRTrend))

			Expect(sse.WaitForHeartbeat(2 * time.Second)).To(Succeed())
		})
	})
})
