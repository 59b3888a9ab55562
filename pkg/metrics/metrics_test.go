package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "detection")
				So(manager.customLabels, ShouldResemble, map[string]string{"env": "test"})
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
			})

			Convey("And metric names carry the namespace and subsystem", func() {
				manager.submissions.WithLabelValues("succeeded").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_namespace_detection_submissions_total")
			})
		})

		Convey("When zero values are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "sudea")
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestPipelineMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When submissions are recorded", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues("detector_failure"))
			RecordSubmission("detector_failure")
			RecordSubmission("detector_failure")

			Convey("Then the outcome counter increases", func() {
				after := testutil.ToFloat64(globalManager.submissions.WithLabelValues("detector_failure"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When detector exits are recorded", func() {
			before := testutil.ToFloat64(globalManager.detectorExits.WithLabelValues("3"))
			RecordDetectorExit("3")

			Convey("Then the exit code counter increases", func() {
				So(testutil.ToFloat64(globalManager.detectorExits.WithLabelValues("3"))-before, ShouldEqual, 1)
			})
		})

		Convey("When the outbox gauges are updated", func() {
			UpdateOutboxSize(7)
			UpdateOutboxCapacity(64)
			UpdateWorkerCount(2)

			Convey("Then the gauges reflect the last value", func() {
				So(testutil.ToFloat64(globalManager.outboxSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.outboxCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 2)
			})
		})

		Convey("When notifications and auth resolutions are recorded", func() {
			before := testutil.ToFloat64(globalManager.notifications.WithLabelValues("sent"))
			RecordNotification("sent")
			authBefore := testutil.ToFloat64(globalManager.authResolutions.WithLabelValues("bearer", "hit"))
			RecordAuthResolution("bearer", "hit")
			tokensBefore := testutil.ToFloat64(globalManager.tokensIssued)
			RecordTokenIssued()

			Convey("Then the counters increase", func() {
				So(testutil.ToFloat64(globalManager.notifications.WithLabelValues("sent"))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.authResolutions.WithLabelValues("bearer", "hit"))-authBefore, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.tokensIssued)-tokensBefore, ShouldEqual, 1)
			})
		})

		Convey("When latency histograms are observed", func() {
			So(func() {
				RecordStageLatency("detecting", "ok", 120)
				RecordUploadLatency("s3", "ok", 35)
				RecordSenderLatency(12)
				RecordDetections(3)
				RecordStoredImage()
				RecordScratchError("release")
				RecordOutboxEnqueueError("full")
			}, ShouldNotPanic)
		})
	})
}

func TestHTTPAndSystemMetrics(t *testing.T) {
	Convey("Given HTTP and system metrics", t, func() {
		So(func() {
			RecordHTTPRequest("/api/detect", "POST", "200")
			RecordHTTPRequestDuration("/api/detect", "POST", "200", 15.0)
			RecordErrorByEndpoint("/api/detect", "POST", "client_error")
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(12)
			RecordSystemGCPauseTime(0.2)
		}, ShouldNotPanic)

		Convey("Then the custom registry exposes them", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}

func TestDisabledMetrics(t *testing.T) {
	Convey("Given a disabled global manager", t, func() {
		saved := globalManager
		globalManager = NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))
		defer func() { globalManager = saved }()

		RecordSubmission("succeeded")

		Convey("Then recording is a no-op", func() {
			So(testutil.ToFloat64(globalManager.submissions.WithLabelValues("succeeded")), ShouldEqual, 0)
		})
	})
}

func TestSince(t *testing.T) {
	Convey("Given a start time in the past", t, func() {
		start := time.Now().Add(-50 * time.Millisecond)
		So(Since(start), ShouldBeGreaterThanOrEqualTo, 50)
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager is reconfigured", t, func() {
		savedManager, savedRegistry := globalManager, customRegistry
		defer func() { globalManager, customRegistry = savedManager, savedRegistry }()

		Configure(
			WithNamespace("fleet"),
			WithRefreshInterval(3*time.Second),
			WithCustomLabels(map[string]string{"site": "north"}),
		)
		RecordSubmission("succeeded")

		Convey("Then recorders and the exposed registry use the new settings", func() {
			So(GetRegistry(), ShouldNotEqual, savedRegistry)
			So(RefreshInterval(), ShouldEqual, 3*time.Second)

			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var found bool
			for _, f := range families {
				if f.GetName() != "fleet_detection_submissions_total" {
					continue
				}
				found = true
				labels := f.GetMetric()[0].GetLabel()
				pairs := map[string]string{}
				for _, l := range labels {
					pairs[l.GetName()] = l.GetValue()
				}
				So(pairs["site"], ShouldEqual, "north")
				So(pairs["outcome"], ShouldEqual, "succeeded")
			}
			So(found, ShouldBeTrue)
		})

		Convey("Then a disabled configuration records nothing", func() {
			Configure(WithMetricsEnabled(false))
			RecordSubmission("succeeded")
			So(testutil.ToFloat64(globalManager.submissions.WithLabelValues("succeeded")), ShouldEqual, 0)
		})
	})
}
