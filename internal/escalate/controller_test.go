package escalate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/vision"
)

func candidate(vendor string, total float64) vision.InvoiceFields {
	return vision.InvoiceFields{
		Vendor:            entity.Vendor{Name: vendor, Address: "12 MG Road", TaxNumber: "29ABCDE1234F1Z5", Phone: "+91-9876543210"},
		InvoiceDetails:    entity.InvoiceDetails{Number: "INV-1", Date: "2025-10-05"},
		Items:             []entity.LineItem{{Name: "Printer", Qty: 1, Rate: total}},
		TotalInvoiceValue: total,
		TotalGSTValue:     total * 0.18,
	}
}

type scriptedExtractor struct {
	results []vision.InvoiceFields
	errs    []error
	hints   []string
}

func (s *scriptedExtractor) Extract(_ context.Context, _ string, hint string) (vision.InvoiceFields, error) {
	i := len(s.hints)
	s.hints = append(s.hints, hint)
	if i < len(s.errs) && s.errs[i] != nil {
		return vision.InvoiceFields{}, s.errs[i]
	}
	return s.results[i], nil
}

type scriptedVerifier struct {
	verdicts []vision.Verdict
	errs     []error
	seen     []vision.InvoiceFields
}

func (s *scriptedVerifier) Verify(_ context.Context, _ string, c vision.InvoiceFields) (vision.Verdict, error) {
	i := len(s.seen)
	s.seen = append(s.seen, c)
	if i < len(s.errs) && s.errs[i] != nil {
		return vision.Verdict{}, s.errs[i]
	}
	return s.verdicts[i], nil
}

type scriptedArbiter struct {
	pickSecond bool
	gotA, gotB vision.InvoiceFields
	calls      int
	err        error
}

func (s *scriptedArbiter) Arbitrate(_ context.Context, _ string, a, b vision.InvoiceFields) (vision.InvoiceFields, error) {
	s.calls++
	s.gotA, s.gotB = a, b
	if s.err != nil {
		return vision.InvoiceFields{}, s.err
	}
	if s.pickSecond {
		return b, nil
	}
	return a, nil
}

func TestRunAcceptsOnRoundOne(t *testing.T) {
	want := candidate("ABC Traders", 100)
	ext := &scriptedExtractor{results: []vision.InvoiceFields{want}}
	ver := &scriptedVerifier{verdicts: []vision.Verdict{{Accepted: true}}}
	arb := &scriptedArbiter{}

	out, err := NewController(ext, ver, arb, nil).Run(context.Background(), "page-1.png")
	require.NoError(t, err)
	assert.Equal(t, want, out.Fields)
	assert.Equal(t, 1, out.Round)
	assert.False(t, out.Arbitrated)
	assert.Len(t, ext.hints, 1, "no re-extraction after acceptance")
	assert.Zero(t, arb.calls, "arbitration is only a final tie-break")
}

func TestRunAcceptsOnRoundTwoWithHint(t *testing.T) {
	first := candidate("ABC Traders", 100)
	second := candidate("ABC Traders Pvt. Ltd.", 100)
	ext := &scriptedExtractor{results: []vision.InvoiceFields{first, second}}
	ver := &scriptedVerifier{verdicts: []vision.Verdict{
		{Accepted: false, CorrectionHint: "fix vendor name"},
		{Accepted: true},
	}}
	arb := &scriptedArbiter{}

	out, err := NewController(ext, ver, arb, nil).Run(context.Background(), "page-1.png")
	require.NoError(t, err)
	assert.Equal(t, second, out.Fields, "round-2 candidate wins; rejected round-1 candidate is dropped")
	assert.Equal(t, 2, out.Round)
	assert.Equal(t, []string{"", "fix vendor name"}, ext.hints, "round-1 hint steers round 2")
	assert.Zero(t, arb.calls)
}

func TestRunArbitratesThirdAgainstFirst(t *testing.T) {
	first := candidate("Vendor A", 100)
	second := candidate("Vendor B", 200)
	third := candidate("Vendor C", 300)
	ext := &scriptedExtractor{results: []vision.InvoiceFields{first, second, third}}
	ver := &scriptedVerifier{verdicts: []vision.Verdict{
		{Accepted: false, CorrectionHint: "wrong total"},
		{Accepted: false, CorrectionHint: "still wrong"},
	}}

	for _, pickSecond := range []bool{false, true} {
		ext.hints = nil
		ver.seen = nil
		arb := &scriptedArbiter{pickSecond: pickSecond}

		out, err := NewController(ext, ver, arb, nil).Run(context.Background(), "page-1.png")
		require.NoError(t, err)
		assert.Equal(t, 3, out.Round)
		assert.True(t, out.Arbitrated)
		assert.Equal(t, third, arb.gotA, "third candidate goes first into arbitration")
		assert.Equal(t, first, arb.gotB, "tie-break is against round 1, not round 2")
		if pickSecond {
			assert.Equal(t, first, out.Fields)
		} else {
			assert.Equal(t, third, out.Fields)
		}
		assert.NotEqual(t, second, out.Fields, "round-2 candidate can never be committed")
		assert.Equal(t, []string{"", "wrong total", "still wrong"}, ext.hints)
		assert.Len(t, ver.seen, 2, "the arbitration result is not re-verified")
	}
}

func TestRunIsDeterministicForIdenticalInputs(t *testing.T) {
	run := func() Outcome {
		ext := &scriptedExtractor{results: []vision.InvoiceFields{
			candidate("Vendor A", 100), candidate("Vendor B", 200), candidate("Vendor C", 300),
		}}
		ver := &scriptedVerifier{verdicts: []vision.Verdict{
			{Accepted: false, CorrectionHint: "h1"},
			{Accepted: false, CorrectionHint: "h2"},
		}}
		out, err := NewController(ext, ver, &scriptedArbiter{}, nil).Run(context.Background(), "page-1.png")
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, run(), run())
}

func TestRunAbortsOnCapabilityErrors(t *testing.T) {
	boom := common.ErrCapabilityUnavailable
	good := candidate("Vendor", 10)
	reject := vision.Verdict{Accepted: false, CorrectionHint: "h"}

	tests := []struct {
		name string
		ext  *scriptedExtractor
		ver  *scriptedVerifier
		arb  *scriptedArbiter
	}{
		{
			name: "round 1 extract",
			ext:  &scriptedExtractor{results: make([]vision.InvoiceFields, 1), errs: []error{boom}},
			ver:  &scriptedVerifier{},
			arb:  &scriptedArbiter{},
		},
		{
			name: "round 1 verify",
			ext:  &scriptedExtractor{results: []vision.InvoiceFields{good}},
			ver:  &scriptedVerifier{verdicts: make([]vision.Verdict, 1), errs: []error{boom}},
			arb:  &scriptedArbiter{},
		},
		{
			name: "round 2 extract",
			ext:  &scriptedExtractor{results: make([]vision.InvoiceFields, 2), errs: []error{nil, boom}},
			ver:  &scriptedVerifier{verdicts: []vision.Verdict{reject}},
			arb:  &scriptedArbiter{},
		},
		{
			name: "round 3 arbitrate",
			ext:  &scriptedExtractor{results: []vision.InvoiceFields{good, good, good}},
			ver:  &scriptedVerifier{verdicts: []vision.Verdict{reject, reject}},
			arb:  &scriptedArbiter{err: boom},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.ext, tt.ver, tt.arb, nil).Run(context.Background(), "page-1.png")
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrCapabilityUnavailable))
		})
	}
}
