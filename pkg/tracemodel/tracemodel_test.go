package tracemodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/tracemodel"
)

func TestNewTaskIdentity_JoinsWithDoubleColon(t *testing.T) {
	t.Parallel()

	id, err := tracemodel.NewTaskIdentity("app", "blink")

	require.NoError(t, err)
	assert.Equal(t, "app::blink", id.String())
	assert.Equal(t, []string{"app", "blink"}, id.Segments())
}

func TestNewTaskIdentity_RejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := tracemodel.NewTaskIdentity()

	require.ErrorIs(t, err, tracemodel.ErrEmptyTaskIdentity)
}

func TestNewTaskIdentity_RejectsEmptySegment(t *testing.T) {
	t.Parallel()

	_, err := tracemodel.NewTaskIdentity("app", "")

	require.ErrorIs(t, err, tracemodel.ErrEmptySegment)
}

func TestCoreExceptionByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantExc tracemodel.CoreException
		wantOK  bool
	}{
		{"SysTick", tracemodel.SysTick, true},
		{"HardFault", tracemodel.HardFault, true},
		{"TIM2", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := tracemodel.CoreExceptionByName(tt.name)

			assert.Equal(t, tt.wantOK, ok)

			if ok {
				assert.Equal(t, tt.wantExc, got)
			}
		})
	}
}

func TestInterruptSource_UsableAsMapKey(t *testing.T) {
	t.Parallel()

	hw := tracemodel.HardwareTaskMap{}

	sysTick := tracemodel.CoreExceptionSource(tracemodel.SysTick)
	tim2 := tracemodel.DeviceInterruptSource(44)

	tickID, err := tracemodel.NewTaskIdentity("app", "tick")
	require.NoError(t, err)

	hwID, err := tracemodel.NewTaskIdentity("app", "hw")
	require.NoError(t, err)

	hw[sysTick] = tickID
	hw[tim2] = hwID

	assert.Equal(t, tickID, hw[tracemodel.CoreExceptionSource(tracemodel.SysTick)])
	assert.Equal(t, hwID, hw[tracemodel.DeviceInterruptSource(44)])
	assert.Len(t, hw, 2)
}

func TestSoftwareTaskMap_IsDispatcher(t *testing.T) {
	t.Parallel()

	sw := tracemodel.NewSoftwareTaskMap()

	exti0 := tracemodel.DeviceInterruptSource(22)
	sw.Dispatchers[exti0] = struct{}{}

	assert.True(t, sw.IsDispatcher(exti0))
	assert.False(t, sw.IsDispatcher(tracemodel.DeviceInterruptSource(23)))
}

func TestTraceMetadata_TaskCounts(t *testing.T) {
	t.Parallel()

	tickID, err := tracemodel.NewTaskIdentity("app", "tick")
	require.NoError(t, err)

	sw := tracemodel.NewSoftwareTaskMap()
	sw.Tasks[0] = tickID

	meta := tracemodel.TraceMetadata{
		ProgramName: "blink",
		Hardware:    tracemodel.HardwareTaskMap{tracemodel.CoreExceptionSource(tracemodel.SysTick): tickID},
		Software:    sw,
		TPIUFreq:    16_000_000,
	}

	assert.Equal(t, 1, meta.HardwareTaskCount())
	assert.Equal(t, 1, meta.SoftwareTaskCount())
}
