package vrep

import "strings"

const (
	// DefaultNamespace is where the simulator plugin advertises its services.
	DefaultNamespace = "/vrep"
	// InfoTopic carries the simulator status.
	InfoTopic = "/vrep/info"
	// InfoType is the message type published on InfoTopic.
	InfoType = "vrep_common/VrepInfo"

	// RelativeToWorld selects the world frame for position and pose calls.
	RelativeToWorld Handle = -1
	// ResultFailure is the result code of a failed call.
	ResultFailure int32 = -1
	// LoadSceneSuccess is the only result code meaning a scene was loaded.
	LoadSceneSuccess int32 = 1
	// StateRunning is the simulatorState value of a running simulation.
	StateRunning int32 = 1
)

// Service names, relative to the plugin namespace.
const (
	ServiceStartSimulation   = "simRosStartSimulation"
	ServiceStopSimulation    = "simRosStopSimulation"
	ServiceCopyPasteObjects  = "simRosCopyPasteObjects"
	ServiceGetObjectHandle   = "simRosGetObjectHandle"
	ServiceSetObjectPosition = "simRosSetObjectPosition"
	ServiceGetObjectPose     = "simRosGetObjectPose"
	ServiceLoadScene         = "simRosLoadScene"
)

// Services lists every service the adapter binds.
var Services = []string{
	ServiceStartSimulation,
	ServiceStopSimulation,
	ServiceCopyPasteObjects,
	ServiceGetObjectHandle,
	ServiceSetObjectPosition,
	ServiceGetObjectPose,
	ServiceLoadScene,
}

// ServiceName resolves service inside namespace ns. An empty namespace means
// DefaultNamespace.
func ServiceName(ns, service string) string {
	if ns == "" {
		ns = DefaultNamespace
	}
	ns = "/" + strings.Trim(ns, "/")
	if ns == "/" {
		return "/" + service
	}
	return ns + "/" + service
}

// ServiceType returns the ROS type name of a simulator service.
func ServiceType(service string) string {
	return "vrep_common/" + service
}

type StartSimulationRequest struct{}

type StartSimulationResponse struct {
	Result int32 `json:"result"`
}

type StopSimulationRequest struct{}

type StopSimulationResponse struct {
	Result int32 `json:"result"`
}

type GetObjectHandleRequest struct {
	ObjectName string `json:"objectName"`
}

type GetObjectHandleResponse struct {
	Handle Handle `json:"handle"`
}

type SetObjectPositionRequest struct {
	Handle                 Handle `json:"handle"`
	RelativeToObjectHandle Handle `json:"relativeToObjectHandle"`
	Position               Point  `json:"position"`
}

type SetObjectPositionResponse struct {
	Result int32 `json:"result"`
}

type CopyPasteObjectsRequest struct {
	ObjectHandles []Handle `json:"objectHandles"`
}

type CopyPasteObjectsResponse struct {
	NewObjectHandles []Handle `json:"newObjectHandles"`
}

type GetObjectPoseRequest struct {
	Handle                 Handle `json:"handle"`
	RelativeToObjectHandle Handle `json:"relativeToObjectHandle"`
}

type GetObjectPoseResponse struct {
	Result int32       `json:"result"`
	Pose   PoseStamped `json:"pose"`
}

type LoadSceneRequest struct {
	FileName string `json:"fileName"`
}

type LoadSceneResponse struct {
	Result int32 `json:"result"`
}
