package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestBatchHierarchy(t *testing.T) {
	root := &Batch{Name: "0227042251", Level: LevelRoot}
	sub := &Batch{Name: "0227042251-1", Level: LevelSubLot}

	require.NoError(t, root.ValidateHierarchy(nil))
	require.NoError(t, (&Batch{Level: LevelSubLot}).ValidateHierarchy(root))
	require.NoError(t, (&Batch{Level: LevelContainer}).ValidateHierarchy(sub))

	err := (&Batch{Level: LevelSubLot}).ValidateHierarchy(nil)
	assert.ErrorIs(t, err, ErrHierarchy)
	assert.Contains(t, err.Error(), "parent_reference")

	err = (&Batch{Level: LevelSubLot}).ValidateHierarchy(sub)
	assert.ErrorIs(t, err, ErrHierarchy)
	assert.Contains(t, err.Error(), "0227042251-1")

	assert.ErrorIs(t, (&Batch{Level: 4}).ValidateHierarchy(root), ErrHierarchy)
	assert.ErrorIs(t, (&Batch{Level: LevelRoot}).ValidateHierarchy(root), ErrHierarchy)
}

func TestBatchStateMachine_HappyPath(t *testing.T) {
	b := &Batch{ProcessingStatus: BatchStatusDraft, QualityStatus: QualityPending}

	assert.ErrorIs(t, b.Apply(ActionSchedule, now), ErrInvalidTransition, "schedule needs planned_start")
	b.PlannedStart = ptr(now.Add(24 * time.Hour))
	require.NoError(t, b.Apply(ActionSchedule, now))
	assert.Equal(t, BatchStatusScheduled, b.ProcessingStatus)

	require.NoError(t, b.Apply(ActionStart, now))
	assert.Equal(t, BatchStatusInProgress, b.ProcessingStatus)
	require.NotNil(t, b.ActualStart)

	require.NoError(t, b.Apply(ActionPause, now))
	assert.Equal(t, BatchStatusOnHold, b.ProcessingStatus)
	require.NoError(t, b.Apply(ActionResume, now))

	require.NoError(t, b.Apply(ActionComplete, now))
	assert.Equal(t, BatchStatusQualityCheck, b.ProcessingStatus)
	require.NotNil(t, b.ActualCompletion)

	require.NoError(t, b.Apply(ActionReject, now))
	assert.Equal(t, BatchStatusOnHold, b.ProcessingStatus)
	assert.Equal(t, QualityFailed, b.QualityStatus)

	require.NoError(t, b.Apply(ActionResume, now))
	require.NoError(t, b.Apply(ActionComplete, now))
	require.NoError(t, b.Apply(ActionApprove, now))
	assert.Equal(t, BatchStatusCompleted, b.ProcessingStatus)
	assert.Equal(t, QualityPassed, b.QualityStatus)
}

func TestBatchStateMachine_DraftStartsDirectly(t *testing.T) {
	b := &Batch{ProcessingStatus: BatchStatusDraft}
	require.NoError(t, b.Apply(ActionStart, now))
	assert.Equal(t, BatchStatusInProgress, b.ProcessingStatus)
}

func TestBatchStateMachine_TerminalStates(t *testing.T) {
	for _, status := range []string{BatchStatusCompleted, BatchStatusCancelled} {
		for action := range batchTransitions {
			b := &Batch{ProcessingStatus: status}
			err := b.Apply(action, now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTerminalStatus), "%s/%s", status, action)
			assert.Equal(t, status, b.ProcessingStatus)
		}
	}
}

func TestBatchStateMachine_CancelFromAnyNonTerminal(t *testing.T) {
	for _, status := range []string{BatchStatusDraft, BatchStatusScheduled, BatchStatusInProgress, BatchStatusQualityCheck, BatchStatusOnHold} {
		b := &Batch{ProcessingStatus: status}
		require.NoError(t, b.Apply(ActionCancel, now), status)
		assert.Equal(t, BatchStatusCancelled, b.ProcessingStatus)
	}
}

func TestBatchStateMachine_InvalidTransition(t *testing.T) {
	b := &Batch{ProcessingStatus: BatchStatusDraft}
	assert.ErrorIs(t, b.Apply(ActionApprove, now), ErrInvalidTransition)
	assert.ErrorIs(t, b.Apply("explode", now), ErrInvalidTransition)
}

func TestBatchSetQuantities(t *testing.T) {
	b := &Batch{Name: "B", ProcessingStatus: BatchStatusInProgress, PlannedQty: 10}
	require.NoError(t, b.SetQuantities(nil, ptr(8.5), nil))
	assert.Equal(t, 8.5, b.ProducedQty)
	assert.Error(t, b.SetQuantities(ptr(0.0), nil, nil))

	b.ProcessingStatus = BatchStatusCompleted
	assert.ErrorIs(t, b.SetQuantities(nil, ptr(9.0), nil), ErrQuantityLocked)
}

func TestNetWeight(t *testing.T) {
	for gross := 0.0; gross <= 300; gross += 12.5 {
		for tare := 0.0; tare <= gross; tare += 7.25 {
			net, err := NetWeight(gross, tare)
			require.NoError(t, err)
			require.Equal(t, gross-tare, net)
		}
	}
	_, err := NetWeight(10, 12)
	assert.ErrorIs(t, err, ErrNegativeNetWeight)
	_, err = NetWeight(-1, 0)
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestContainerWeightsAndFill(t *testing.T) {
	c := &Container{Serial: "JCP-0001-B123-0001", NominalCapacity: 220}

	require.NoError(t, c.SetWeights(230, 20))
	assert.Equal(t, 210.0, c.NetWeight)
	assert.Equal(t, FillFull, c.FillState)

	require.NoError(t, c.SetWeights(120, 20))
	assert.Equal(t, FillPartial, c.FillState)
	require.NoError(t, c.Validate())

	require.NoError(t, c.SetWeights(30, 20))
	assert.Equal(t, FillRejected, c.FillState)
	assert.ErrorIs(t, c.Validate(), ErrFillTooLow)

	c.GrossWeight, c.TareWeight = 20, 20
	assert.ErrorIs(t, c.Validate(), ErrInvalidWeight)

	assert.ErrorIs(t, c.SetWeights(10, 20), ErrNegativeNetWeight)
	assert.Equal(t, 20.0, c.GrossWeight, "failed update leaves weights untouched")
}

func TestValidateSerial(t *testing.T) {
	assert.NoError(t, ValidateSerial("JCP-0001-B123-0001"))
	assert.ErrorIs(t, ValidateSerial("jcp-0001-b123-0001"), ErrInvalidSerial)
	assert.ErrorIs(t, ValidateSerial("JC-0001-B123-0001"), ErrInvalidSerial)
	assert.Equal(t, "JCP-0001-B123-0001", NormalizeSerial("  jcp-0001-b123-0001 "))
}

func TestContainerReuseLifecycle(t *testing.T) {
	c := &Container{Serial: "JCP-0001-B123-0001", Lifecycle: LifecycleReuse, Status: ContainerStatusNew, MaxReuseCount: 2}

	require.NoError(t, c.Apply(EventFill, now))
	assert.Equal(t, ContainerStatusInUse, c.Status)
	assert.Equal(t, 1, c.UsageCount)
	require.NoError(t, c.Apply(EventEmpty, now))
	require.NoError(t, c.Apply(EventClean, now))
	assert.Equal(t, ContainerStatusReadyForReuse, c.Status)

	require.NoError(t, c.Apply(EventFill, now))
	require.NoError(t, c.Apply(EventEmpty, now))
	require.NoError(t, c.Apply(EventClean, now))
	assert.Equal(t, ContainerStatusRetired, c.Status, "retired once usage reaches max_reuse_count")

	assert.ErrorIs(t, c.Apply(EventFill, now), ErrTerminalStatus)
}

func TestContainerReuseLifecycle_Invalid(t *testing.T) {
	c := &Container{Serial: "JCP-0001-B123-0001", Status: ContainerStatusNew}
	assert.ErrorIs(t, c.Apply(EventClean, now), ErrInvalidTransition)
	assert.ErrorIs(t, c.Apply(EventReserve, now), ErrInvalidTransition)
}

func TestContainerSelectionLifecycle(t *testing.T) {
	c := &Container{Serial: "JCP-0001-B123-0002", Lifecycle: LifecycleSelection, Status: ContainerStatusAvailable, NominalCapacity: 200}

	require.NoError(t, c.Apply(EventReserve, now))
	assert.Equal(t, ContainerStatusReserved, c.Status)

	require.NoError(t, c.SetWeights(120, 20))
	require.NoError(t, c.Apply(EventLoad, now))
	assert.Equal(t, ContainerStatusPartial, c.Status)

	require.NoError(t, c.SetWeights(215, 20))
	require.NoError(t, c.Apply(EventLoad, now))
	assert.Equal(t, ContainerStatusCompleted, c.Status)

	assert.ErrorIs(t, c.Apply(EventRelease, now), ErrInvalidTransition)
	require.NoError(t, c.Apply(EventRetire, now))
	assert.Equal(t, ContainerStatusRetired, c.Status)
}

func TestParseSpecification(t *testing.T) {
	cases := []struct {
		spec string
		in   []float64
		out  []float64
	}{
		{"4.0 - 5.5", []float64{4, 5.5, 4.7}, []float64{3.99, 5.6}},
		{"<= 100 CFU/g", []float64{100, 0}, []float64{100.1}},
		{"< 10", []float64{9.9}, []float64{10}},
		{"NMT 0.5 %", []float64{0.5}, []float64{0.51}},
		{"NLT 98", []float64{98, 99}, []float64{97.9}},
		{"> 1", []float64{1.01}, []float64{1}},
		{"1.5 ± 0.2", []float64{1.3, 1.7}, []float64{1.29, 1.71}},
	}
	for _, tc := range cases {
		rng, ok := ParseSpecification(tc.spec)
		require.True(t, ok, tc.spec)
		for _, v := range tc.in {
			assert.True(t, rng.Contains(v), "%s should contain %v", tc.spec, v)
		}
		for _, v := range tc.out {
			assert.False(t, rng.Contains(v), "%s should not contain %v", tc.spec, v)
		}
	}

	_, ok := ParseSpecification("Characteristic odor")
	assert.False(t, ok)
}

func TestCOARecompute(t *testing.T) {
	coa := &COA{Parameters: []COAParameter{
		{ParameterName: "pH", Specification: "3.5 - 5.0", Result: ptr(4.2), Status: TestFail},
		{ParameterName: "Solids", MinValue: ptr(0.5), MaxValue: ptr(1.5), Result: ptr(1.0)},
		{ParameterName: "Appearance", Specification: "Clear liquid"},
	}}

	assert.Equal(t, TestPending, coa.Recompute())
	assert.Equal(t, TestPass, coa.Parameters[0].Status, "status is derived, never trusted")
	assert.Equal(t, TestPass, coa.Parameters[1].Status)
	assert.Equal(t, TestPending, coa.Parameters[2].Status)

	coa.Parameters = coa.Parameters[:2]
	assert.Equal(t, TestPass, coa.Recompute())

	coa.Parameters[1].Result = ptr(2.0)
	assert.Equal(t, TestFail, coa.Recompute())

	assert.Equal(t, TestPending, (&COA{}).Recompute())
}
