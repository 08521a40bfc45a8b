package topic

import "github.com/axmq/broker/mqttcodec"

// SubscriberInfo is a single matched (or stored) subscriber entry held at a
// trie node: the client that subscribed and the QoS it was granted.
type SubscriberInfo struct {
	ClientID string
	QoS      mqttcodec.QoS
}

// Subscription is the (ClientID, TopicFilter, QoS) tuple the router keeps
// per client so it can answer "what is X subscribed to" and remove all of
// a client's filters on disconnect. A duplicate (ClientID, TopicFilter)
// overwrites QoS.
type Subscription struct {
	ClientID    string
	TopicFilter string
	QoS         mqttcodec.QoS
}

// RetainedMessage pairs a stored PUBLISH payload with the topic it was
// retained under.
type RetainedMessage struct {
	Topic   string
	Payload []byte
	QoS     mqttcodec.QoS
}
