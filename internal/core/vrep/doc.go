// Package vrep describes the ROS interface that the V-REP simulator plugin
// exposes: service names, service type names, request and response records
// and the messages published on the info topic.
//
// Field names follow the simulator's own message definitions so the records
// marshal directly into rosbridge frames.
package vrep
