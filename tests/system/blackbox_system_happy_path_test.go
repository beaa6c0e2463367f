//go:build system

package system_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pcb-mes/internal/domain"
	"pcb-mes/internal/pipeline"
	appTemporal "pcb-mes/internal/temporal"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())
	})

	It("takes a work order through CAM intake, job card approval and release into fabrication", func() {
		apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")

		By("creating a work order")
		wo, err := createWorkOrder(apiBaseURL, domain.NewWorkOrder{
			Number:   fmt.Sprintf("WO-SYS-%d", time.Now().UnixNano()),
			Customer: "Blackbox Electronics",
			Product:  "4-layer controller",
			Quantity: 25,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(wo.Stage).To(Equal(domain.StageCAM))

		By("uploading the CAM package exactly like a CAM engineer")
		for _, f := range []struct{ category, kind, name, body string }{
			{domain.CategoryIntake, domain.KindGerber, "top_copper.gbr", "G04 top copper*\nM02*\n"},
			{domain.CategoryNCDrill, domain.KindDrillFile, "through.drl", "M48\nT01C0.30\nM30\n"},
			{domain.CategoryPhototools, domain.KindFilm, "film_top.gbr", "G04 film*\nM02*\n"},
		} {
			_, err := uploadAttachment(apiBaseURL, wo.ID, f.category, f.kind, f.name, []byte(f.body))
			Expect(err).ToNot(HaveOccurred())
		}
		jobCard, err := uploadAttachment(apiBaseURL, wo.ID, domain.CategoryJobCards, domain.KindJobCard, "job_card.txt", []byte("Job card for "+wo.Number))
		Expect(err).ToNot(HaveOccurred())
		Expect(jobCard.WorkflowID).ToNot(BeEmpty())

		By("waiting for the CAM view to show uploads but an unapproved job card")
		Eventually(func() pipeline.StageState {
			view, viewErr := getPipeline(apiBaseURL, wo.ID)
			Expect(viewErr).ToNot(HaveOccurred())
			return camStatus(view, pipeline.FilmUpload)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(pipeline.StateCompleted))

		view, err := getPipeline(apiBaseURL, wo.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(camStatus(view, pipeline.JobCardCreation)).To(Equal(pipeline.StateCompleted))
		Expect(camStatus(view, pipeline.UpdateJobCards)).To(Equal(pipeline.StatePending))

		By("refusing to release before approval")
		_, err = postJSON[advanceResponse](apiBaseURL+"/v1/work-orders/"+wo.ID+"/advance", map[string]string{})
		Expect(err).To(MatchError(ContainSubstring("status=409")))

		By("approving the job card once its intake workflow is waiting")
		Eventually(func() error {
			_, approveErr := postJSON[map[string]any](apiBaseURL+"/v1/work-orders/"+wo.ID+"/attachments/"+jobCard.AttachmentID+"/approval",
				map[string]string{"decision": "approve", "approver": "cam-lead"})
			return approveErr
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Succeed())

		Eventually(func() pipeline.StageState {
			v, viewErr := getPipeline(apiBaseURL, wo.ID)
			Expect(viewErr).ToNot(HaveOccurred())
			return camStatus(v, pipeline.UpdateJobCards)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(pipeline.StateCompleted))

		By("releasing the work order into fabrication")
		advanced, err := postJSON[advanceResponse](apiBaseURL+"/v1/work-orders/"+wo.ID+"/advance", map[string]string{"expected_stage": domain.StageCAM})
		Expect(err).ToNot(HaveOccurred())
		Expect(advanced.From).To(Equal(domain.StageCAM))
		Expect(advanced.To).To(Equal(pipeline.SheetCutting))

		By("refusing a second release that still expects CAM")
		_, err = postJSON[advanceResponse](apiBaseURL+"/v1/work-orders/"+wo.ID+"/advance", map[string]string{"expected_stage": domain.StageCAM})
		Expect(err).To(MatchError(And(ContainSubstring("status=409"), ContainSubstring(appTemporal.ErrTypeStageMismatch))))

		view, err = getPipeline(apiBaseURL, wo.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(view.CurrentStage).To(Equal(pipeline.SheetCutting))
		Expect(view.NextStage).To(Equal(pipeline.CNCDrilling))
		Expect(camStatus(view, pipeline.AssemblyDispatch)).To(Equal(pipeline.StateCompleted))

		By("validating the job card intake workflow from Temporal history")
		temporalClient, err := dialTemporal(cfg.TemporalAddress, cfg.TemporalNamespace)
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		trace, err := collectActivityTrace(context.Background(), temporalClient, jobCard.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(trace.ScheduledOrder).To(Equal(cfg.ExpectedIntakeOrder))
		Expect(trace.CompletedOrder).To(Equal(cfg.ExpectedIntakeOrder))

		registerIn := trace.Inputs["RegisterAttachmentActivity"].(appTemporal.RegisterAttachmentInput)
		Expect(registerIn.AttachmentID).To(Equal(jobCard.AttachmentID))
		Expect(registerIn.ObjectKey).To(Equal(jobCard.ObjectKey))

		registerOut := trace.Outputs["RegisterAttachmentActivity"].(appTemporal.RegisterAttachmentOutput)
		Expect(registerOut.RequiresApproval).To(BeTrue())

		resolveIn := trace.Inputs["ResolveApprovalActivity"].(appTemporal.ResolveApprovalInput)
		Expect(resolveIn.Decision).To(Equal(domain.ApprovalDecisionApprove))
		Expect(resolveIn.Approver).To(Equal("cam-lead"))

		signals, err := collectWorkflowSignalNames(context.Background(), temporalClient, jobCard.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(signals).To(Equal([]string{appTemporal.ApprovalDecisionSignalName}))

		By("verifying traveler and station records in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		eventTypes, err := fetchStringRows(db, `SELECT event_type FROM traveler_events WHERE work_order_id = $1 ORDER BY id`, wo.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(eventTypes).To(ContainElement(string(domain.TravelerJobCardApproved)))
		Expect(eventTypes[len(eventTypes)-1]).To(Equal(string(domain.TravelerStageAdvanced)))

		states, err := fetchStringRows(db, `SELECT state FROM station_statuses WHERE work_order_id = $1 AND stage = $2`, wo.ID, pipeline.SheetCutting)
		Expect(err).ToNot(HaveOccurred())
		Expect(states).To(Equal([]string{string(pipeline.StateInProgress)}))
	})
})
