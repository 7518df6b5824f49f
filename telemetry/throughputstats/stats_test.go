package throughputstats

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestThroughputStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ThroughputStats Suite")
}

var _ = Describe("ThroughputStats", func() {
	var stats *ThroughputStats
	var done chan struct{}

	decodeTotal := func(raw json.RawMessage) int {
		var s snapshot
		err := json.Unmarshal(raw, &s)
		Expect(err).ShouldNot(HaveOccurred(), "failed to unmarshal digest: %s", err)
		return s.Total
	}

	BeforeEach(func() {
		done = make(chan struct{})
		stats = New("bytes", done)
	})

	AfterEach(func() {
		close(done)
	})

	Context("Counting", func() {
		It("tracks each direction independently", func() {
			stats.CountInbound(10)
			stats.CountInbound(5)
			stats.CountOutbound(3)

			digest := stats.Digest()
			Expect(digest.Unit).To(Equal("bytes"))
			Expect(decodeTotal(digest.Inbound)).To(Equal(15))
			Expect(decodeTotal(digest.Outbound)).To(Equal(3))
		})

		It("reports zero before any traffic", func() {
			digest := stats.Digest()
			Expect(decodeTotal(digest.Inbound)).To(Equal(0))
			Expect(decodeTotal(digest.Outbound)).To(Equal(0))
		})
	})
})
