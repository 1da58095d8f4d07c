package vrep

import "fmt"

// Handle identifies an object inside the simulator. Values are assigned by
// the simulator and carry no meaning on this side.
type Handle int32

// InvalidHandle is what the simulator returns when an object does not exist.
const InvalidHandle Handle = -1

// Valid reports whether h can refer to an object.
func (h Handle) Valid() bool { return h != InvalidHandle }

func (h Handle) String() string { return fmt.Sprintf("%d", int32(h)) }

// Point is geometry_msgs/Point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Time is the ROS builtin time type.
type Time struct {
	Secs  uint32 `json:"secs"`
	Nsecs uint32 `json:"nsecs"`
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// PoseStamped is geometry_msgs/PoseStamped.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// Int32 is std_msgs/Int32.
type Int32 struct {
	Data int32 `json:"data"`
}

// Float32 is std_msgs/Float32.
type Float32 struct {
	Data float32 `json:"data"`
}

// Info is vrep_common/VrepInfo, published on the info topic.
type Info struct {
	HeaderInfo     Header  `json:"headerInfo"`
	SimulatorState Int32   `json:"simulatorState"`
	SimulationTime Float32 `json:"simulationTime"`
	TimeStep       Float32 `json:"timeStep"`
}

// Running reports whether the simulation is neither stopped nor paused.
func (i Info) Running() bool {
	return i.SimulatorState.Data == StateRunning
}
