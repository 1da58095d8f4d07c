package vrep

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceName(t *testing.T) {
	tests := []struct {
		ns       string
		expected string
	}{
		{"", "/vrep/simRosStartSimulation"},
		{"/vrep", "/vrep/simRosStartSimulation"},
		{"vrep/", "/vrep/simRosStartSimulation"},
		{"/sim/vrep", "/sim/vrep/simRosStartSimulation"},
		{"/", "/simRosStartSimulation"},
	}

	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			assert.Equal(t, tt.expected, ServiceName(tt.ns, ServiceStartSimulation))
		})
	}
}

func TestServiceType(t *testing.T) {
	assert.Equal(t, "vrep_common/simRosLoadScene", ServiceType(ServiceLoadScene))
	assert.Len(t, Services, 7)
}

func TestInfoRunning(t *testing.T) {
	raw := `{"headerInfo":{"seq":3,"stamp":{"secs":10,"nsecs":5},"frame_id":""},
		"simulatorState":{"data":1},"simulationTime":{"data":1.5},"timeStep":{"data":0.05}}`

	var info Info
	require.NoError(t, json.Unmarshal([]byte(raw), &info))
	assert.True(t, info.Running())
	assert.EqualValues(t, 3, info.HeaderInfo.Seq)
	assert.InDelta(t, 0.05, info.TimeStep.Data, 1e-6)

	for _, state := range []int32{0, 2, 3, 5} {
		info.SimulatorState.Data = state
		assert.False(t, info.Running(), "state %d", state)
	}
}

func TestSetObjectPositionRequestWireNames(t *testing.T) {
	req := SetObjectPositionRequest{
		Handle:                 42,
		RelativeToObjectHandle: RelativeToWorld,
		Position:               Point{X: 1, Y: 2, Z: 0.5},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle":42,"relativeToObjectHandle":-1,"position":{"x":1,"y":2,"z":0.5}}`, string(data))
}

func TestHandle(t *testing.T) {
	assert.False(t, InvalidHandle.Valid())
	assert.True(t, Handle(0).Valid())
	assert.Equal(t, "17", Handle(17).String())
}
