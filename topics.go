// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "fmt"

// Well-known and generated topic shapes. Functions here are the
// single source of truth for topic naming; callers never format a topic
// string by hand.

// wellKnownDiscoverTopic is the topic cores publish Discover on and plugins
// subscribe to. It is a package constant; [Config] has no field to change it.
const wellKnownDiscoverTopic = "$handshake.discover"

// offerTopic returns the per-core, static offer topic a core subscribes to
// once and references in every Discover it emits: handshake/<coreId>/offer
//.
func offerTopic(coreID string) string {
	return fmt.Sprintf("handshake/%s/offer", coreID)
}

// replyTopic returns the per-plugin, static reply topic: handshake/<pluginId>/reply.
func replyTopic(pluginID string) string {
	return fmt.Sprintf("handshake/%s/reply", pluginID)
}

// responseTopic returns the per-core, static response topic: handshake/<coreId>/response.
func responseTopic(coreID string) string {
	return fmt.Sprintf("handshake/%s/response", coreID)
}

// inputTopic returns an operation's input topic: <op>.<coreId>.<pluginId>.input.<uuid>.
func inputTopic(operationName, coreID, pluginID string) string {
	return fmt.Sprintf("%s.%s.%s.input.%s", operationName, coreID, pluginID, NewTopicSuffix())
}

// outputTopic returns an operation's output topic: <op>.<coreId>.<pluginId>.output.<uuid>.
func outputTopic(operationName, coreID, pluginID string) string {
	return fmt.Sprintf("%s.%s.%s.output.%s", operationName, coreID, pluginID, NewTopicSuffix())
}

// closeTopic returns an owner-side inbound close topic: <op>.<id>.<peer>.close.<uuid>.
func closeTopic(operationName, ownerID, peerID string) string {
	return fmt.Sprintf("%s.%s.%s.close.%s", operationName, ownerID, peerID, NewTopicSuffix())
}

// closeAckTopic returns an owner-side inbound ack topic: <op>.<id>.<peer>.close.ack.<uuid>.
func closeAckTopic(operationName, ownerID, peerID string) string {
	return fmt.Sprintf("%s.%s.%s.close.ack.%s", operationName, ownerID, peerID, NewTopicSuffix())
}

// keepaliveTopic returns an Orbiter's keepalive topic: $keepalive.<id>.
func keepaliveTopic(id string) string {
	return fmt.Sprintf("$keepalive.%s", id)
}

// keepaliveRequestTopic returns an Orbiter's keepalive-request topic: $keepalive.<id>.request.
func keepaliveRequestTopic(id string) string {
	return fmt.Sprintf("$keepalive.%s.request", id)
}
