package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operate-experience/navsync/citest/testutil"
	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

var _ = Describe("Navigation", func() {
	var (
		agent  *testutil.TestAgent
		appID  string
		relayC *testutil.TestClient
	)

	BeforeEach(func() {
		agent, appID = startAgent(testRelay.BaseURL)
		relayC = testRelay.Client()
	})

	Describe("pushed events", func() {
		It("should move the agent to the pushed route", func() {
			_, err := relayC.Navigate(ctx, appID, route.Y14Report, testutil.FromSource(testutil.SourceApp, false))
			Expect(err).NotTo(HaveOccurred())

			Eventually(currentPath(agent)).Should(Equal(route.Y14Report))
			Eventually(mountedPage(agent)).Should(Equal("y14-report"))

			state, err := agent.Client().Page(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ActiveTab).To(Equal(3))
			Expect(state.Mounted).To(BeTrue())
		})

		It("should raise a toast naming the source", func() {
			_, err := relayC.Navigate(ctx, appID, route.DSCRTrend, testutil.FromSource(testutil.SourceApp, false))
			Expect(err).NotTo(HaveOccurred())

			var toast page.Toast
			Eventually(agent.Toasts()).Should(Receive(&toast))
			Expect(toast.Open).To(BeTrue())
			Expect(toast.Message).To(Equal("Navigated to " + route.DSCRTrend))
			Expect(toast.Source).To(Equal(testutil.SourceApp))
		})

		It("should fill the last navigation panel of an already mounted page", func() {
			data := testutil.FromSource(testutil.SourceApp, false)
			data["referrer"] = route.Welcome
			data["documentId"] = "doc-42"

			_, err := relayC.Navigate(ctx, appID, route.CovenantMonitoring, data)
			Expect(err).NotTo(HaveOccurred())
			Eventually(mountedPage(agent)).Should(Equal("covenant-monitoring"))

			_, err = relayC.Navigate(ctx, appID, route.CovenantMonitoring, data)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() *page.LastNavigation {
				state, err := agent.Client().Page(ctx)
				if err != nil {
					return nil
				}
				return state.LastNavigation
			}).ShouldNot(BeNil())

			state, err := agent.Client().Page(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.LastNavigation.SourceAppID).To(Equal(testutil.SourceApp))
			Expect(state.LastNavigation.Referrer).To(Equal(route.Welcome))
			Expect(state.LastNavigation.DocumentID).To(Equal("doc-42"))
			Expect(state.LastNavigation.Automatic).To(BeFalse())
		})

		It("should replace the current entry for automatic syncs", func() {
			_, err := relayC.Navigate(ctx, appID, route.Y14Report, testutil.FromSource(testutil.SourceApp, false))
			Expect(err).NotTo(HaveOccurred())
			Eventually(currentPath(agent)).Should(Equal(route.Y14Report))

			_, err = relayC.Navigate(ctx, appID, route.DSCRTrend, testutil.FromSource(testutil.SourceApp, true))
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() []string {
				loc, err := agent.Client().Location(ctx)
				if err != nil {
					return nil
				}
				return loc.Entries
			}).Should(Equal([]string{route.Welcome, route.DSCRTrend}))
		})

		It("should ignore events for other applications", func() {
			_, err := relayC.Navigate(ctx, "someone-else", route.CovenantMonitoring, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = relayC.Navigate(ctx, appID, route.FinancialStatement, nil)
			Expect(err).NotTo(HaveOccurred())

			Eventually(currentPath(agent)).Should(Equal(route.FinancialStatement))

			loc, err := agent.Client().Location(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loc.Entries).NotTo(ContainElement(route.CovenantMonitoring))

			st, err := agent.Client().Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.AppID).To(Equal(appID))
			Expect(st.Router.Discarded).To(BeNumerically(">=", 1))
			Expect(st.Router.Accepted).To(BeNumerically("==", 1))
		})

		// The history snapshot taken on connect is the relay's, unfiltered,
		// so only the head of the agent history belongs to this test.
		It("should record accepted events newest first", func() {
			for _, r := range testutil.ReportRoutes {
				_, err := relayC.Navigate(ctx, appID, r, nil)
				Expect(err).NotTo(HaveOccurred())
			}

			Eventually(func() []string {
				events, err := agent.Client().History(ctx)
				if err != nil || len(events) < len(testutil.ReportRoutes) {
					return nil
				}
				return testutil.Routes(events[:len(testutil.ReportRoutes)])
			}).Should(Equal([]string{
				route.FinancialStatement,
				route.CovenantMonitoring,
				route.DSCRTrend,
				route.Y14Report,
			}))

			relayHistory, err := relayC.RelayHistory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(relayHistory).NotTo(BeEmpty())
			Expect(relayHistory[0].TargetAppID).To(Equal(appID))
			Expect(relayHistory[0].Route).To(Equal(route.FinancialStatement))
		})

		It("should record non-navigation actions without moving", func() {
			_, err := relayC.SendNavigation(ctx, types.NavigationEvent{
				TargetAppID: appID,
				Action:      "REFRESH",
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() types.NavigationEvent {
				events, err := agent.Client().History(ctx)
				if err != nil || len(events) == 0 {
					return types.NavigationEvent{}
				}
				return events[0]
			}).Should(And(
				HaveField("TargetAppID", appID),
				HaveField("Action", types.Action("REFRESH")),
			))
			Expect(currentPath(agent)()).To(Equal(route.Welcome))

			st, err := agent.Client().Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Router.Accepted).To(BeNumerically("==", 1))
		})
	})

	Describe("relay validation", func() {
		It("should reject an event without a target", func() {
			resp, err := relayC.Post(ctx, "/api/navigate", map[string]string{"route": route.Welcome})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("local API", func() {
		It("should navigate and go back", func() {
			resp, err := agent.Client().Post(ctx, "/navigate", map[string]string{"route": route.BenefitsSummary})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var loc testutil.Location
			Expect(resp.JSON(&loc)).To(Succeed())
			Expect(loc.Current.Path).To(Equal(route.BenefitsSummary))

			resp, err = agent.Client().Post(ctx, "/back", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.JSON(&loc)).To(Succeed())
			Expect(loc.Moved).NotTo(BeNil())
			Expect(*loc.Moved).To(BeTrue())
			Expect(loc.Current.Path).To(Equal(route.Welcome))
		})

		It("should stream local signals on /event", func() {
			before := agent.App.Bus().Len()

			sse := agent.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			evt, err := sse.WaitForEvent(string(event.StatusChanged), 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			var status event.StatusSignal
			Expect(evt.Decode(&status)).To(Succeed())
			Expect(status.Connected).To(BeTrue())
			Expect(status.ClientID).NotTo(BeEmpty())

			Eventually(agent.App.Bus().Len).Should(BeNumerically(">", before))

			_, err = relayC.Navigate(ctx, appID, route.DSCRTrend, testutil.FromSource(testutil.SourceApp, true))
			Expect(err).NotTo(HaveOccurred())

			evt, err = sse.WaitForEvent(string(event.NavigationSignalled), 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			var sig event.NavigationSignal
			Expect(evt.Decode(&sig)).To(Succeed())
			Expect(sig.Route).To(Equal(route.DSCRTrend))
			Expect(sig.SourceAppID).To(Equal(testutil.SourceApp))
			Expect(sig.IsAutoSync).To(BeTrue())
		})
	})
})
