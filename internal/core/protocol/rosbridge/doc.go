// Package rosbridge is a client for the rosbridge v2 protocol: JSON
// operations carried over a websocket that give access to ROS services and
// topics.
//
// A Conn multiplexes service calls by id over one socket. Topic deliveries
// are queued per Subscriber and applied when the owner spins it, so message
// callbacks run on the owner's goroutine rather than the reader's.
package rosbridge
