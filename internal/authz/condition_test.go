package authz

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Condition", func() {
	// 2026-03-04 is a Wednesday.
	wednesdayAt := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 4, hour, minute, 0, 0, time.UTC)
	}

	Describe("time windows", func() {
		cond := &Condition{TimeWindow: &TimeWindow{Start: "09:00", End: "18:00"}}

		It("matches inside the window", func() {
			ok, err := cond.Satisfied(EvalContext{Now: wednesdayAt(12, 30)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("rejects outside the window", func() {
			ok, err := cond.Satisfied(EvalContext{Now: wednesdayAt(20, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("treats the end as exclusive", func() {
			ok, err := cond.Satisfied(EvalContext{Now: wednesdayAt(18, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("handles windows crossing midnight", func() {
			night := &Condition{TimeWindow: &TimeWindow{Start: "22:00", End: "06:00"}}

			ok, err := night.Satisfied(EvalContext{Now: wednesdayAt(23, 15)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = night.Satisfied(EvalContext{Now: wednesdayAt(5, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = night.Satisfied(EvalContext{Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("errors on an unparseable bound", func() {
			bad := &Condition{TimeWindow: &TimeWindow{Start: "9am", End: "18:00"}}
			_, err := bad.Satisfied(EvalContext{Now: wednesdayAt(12, 0)})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("weekdays", func() {
		cond := &Condition{Weekdays: []string{"mon", "wed", "fri"}}

		It("matches a listed day", func() {
			ok, err := cond.Satisfied(EvalContext{Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("rejects an unlisted day", func() {
			thursday := wednesdayAt(12, 0).AddDate(0, 0, 1)
			ok, err := cond.Satisfied(EvalContext{Now: thursday})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("errors on an unknown day name", func() {
			bad := &Condition{Weekdays: []string{"funday"}}
			_, err := bad.Satisfied(EvalContext{Now: wednesdayAt(12, 0)})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ip ranges", func() {
		cond := &Condition{IPCIDR: []string{"10.0.0.0/8", "192.168.1.0/24"}}

		It("matches an address in any block", func() {
			ok, err := cond.Satisfied(EvalContext{IP: "192.168.1.77", Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("rejects an address outside all blocks", func() {
			ok, err := cond.Satisfied(EvalContext{IP: "172.16.0.1", Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("rejects callers without a parseable address", func() {
			ok, err := cond.Satisfied(EvalContext{IP: "", Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("errors on a malformed CIDR", func() {
			bad := &Condition{IPCIDR: []string{"10.0.0.0/999"}}
			_, err := bad.Satisfied(EvalContext{IP: "10.0.0.1", Now: wednesdayAt(12, 0)})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("parsing", func() {
		It("accepts empty conditions", func() {
			cond, err := parseCondition(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cond).To(BeNil())

			ok, err := cond.Satisfied(EvalContext{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("rejects unknown fields", func() {
			_, err := parseCondition([]byte(`{"allow_everything":true}`))
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid JSON", func() {
			_, err := parseCondition([]byte(`{`))
			Expect(err).To(HaveOccurred())
		})

		It("combines clauses with AND", func() {
			cond, err := parseCondition([]byte(`{"weekdays":["wed"],"ip_cidr":["10.0.0.0/8"]}`))
			Expect(err).NotTo(HaveOccurred())

			ok, err := cond.Satisfied(EvalContext{IP: "10.1.1.1", Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = cond.Satisfied(EvalContext{IP: "8.8.8.8", Now: wednesdayAt(12, 0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})
