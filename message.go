// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

// Wire payloads of the seven protocol messages. All carry the
// sender's identifier and enough topics that the receiver never needs
// out-of-band state to reply. Schema encoding of the payload itself is
// assumed ; these structs carry SchemaSpecs and topic
// strings only.

// OfferedOperation describes one operation a plugin is offering as part of
// an [OfferMessage].
type OfferedOperation struct {
	Name   string     `json:"name"`
	Input  SchemaSpec `json:"input"`
	Output SchemaSpec `json:"output"`
}

// DiscoverMessage is published by a Core on the well-known discover topic.
type DiscoverMessage struct {
	CoreID                    string                `json:"coreId"`
	NeededOperations          map[string]Constraint `json:"neededOperations"`
	OfferTopic                string                `json:"offerTopic"`
	CoreKeepaliveTopic        string                `json:"coreKeepaliveTopic"`
	CoreKeepaliveRequestTopic string                `json:"coreKeepaliveRequestTopic"`
	ConsiderMeDeadAfterMillis int64                 `json:"considerMeDeadAfterMillis"`
}

// OfferMessage is published by a Plugin on a Core's offer topic in reply
// to a [DiscoverMessage].
type OfferMessage struct {
	PluginID                    string             `json:"pluginId"`
	OfferedOperations           []OfferedOperation `json:"offeredOperations"`
	ReplyTopic                  string             `json:"replyTopic"`
	PluginKeepaliveTopic        string             `json:"pluginKeepaliveTopic"`
	PluginKeepaliveRequestTopic string             `json:"pluginKeepaliveRequestTopic"`
	ConsideredDeadAfterMillis   int64              `json:"consideredDeadAfterMillis"`
}

// RequestOperationMessage is published by a Core on a Plugin's reply topic
// to accept an offered operation.
type RequestOperationMessage struct {
	CoreID             string  `json:"coreId"`
	OperationName      string  `json:"operationName"`
	ResponseTopic      string  `json:"responseTopic"`
	OutputTopic        *string `json:"outputTopic,omitempty"`
	CoreSideCloseTopic string  `json:"coreSideCloseTopic"`
	SetupData          []byte  `json:"setupData,omitempty"`
}

// RejectOperationMessage is published by a Core on a Plugin's reply topic
// to decline an offered operation.
type RejectOperationMessage struct {
	CoreID        string `json:"coreId"`
	OperationName string `json:"operationName"`
}

// ConfirmConnectionMessage is published by a Plugin on a Core's response
// topic to confirm a requested operation.
type ConfirmConnectionMessage struct {
	PluginID             string `json:"pluginId"`
	OperationName        string `json:"operationName"`
	OperationInputTopic  string `json:"operationInputTopic"`
	PluginSideCloseTopic string `json:"pluginSideCloseTopic"`
}

// OperationNoLongerAvailableMessage is published by a Plugin on a Core's
// response topic when a requested operation can no longer be lent.
type OperationNoLongerAvailableMessage struct {
	PluginID      string `json:"pluginId"`
	OperationName string `json:"operationName"`
}

// GracelessCloseConnectionMessage is published on the peer's close topic
// for unilateral, unacknowledged teardown.
type GracelessCloseConnectionMessage struct {
	FromID        string `json:"fromId"`
	OperationName string `json:"operationName"`
	Data          []byte `json:"data,omitempty"`
}

// GracefulCloseConnectionMessage is published on the peer's close topic to
// request acknowledged teardown.
type GracefulCloseConnectionMessage struct {
	FromID        string `json:"fromId"`
	OperationName string `json:"operationName"`
	AckTopic      string `json:"ackTopic"`
	Data          []byte `json:"data,omitempty"`
}

// CloseConnectionAckMessage is published on a GracefulCloseConnectionMessage's
// ack topic to confirm teardown.
type CloseConnectionAckMessage struct {
	FromID        string `json:"fromId"`
	OperationName string `json:"operationName"`
}

// KeepaliveMessage is published to announce liveness, either periodically
// or in reply to a [KeepaliveRequestMessage].
type KeepaliveMessage struct {
	FromID string `json:"fromId"`
}

// KeepaliveRequestMessage is published to ask a remote to publish a fresh
// [KeepaliveMessage] to ReplyTopic.
type KeepaliveRequestMessage struct {
	FromID     string `json:"fromId"`
	ReplyTopic string `json:"replyTopic"`
}

// replyEnvelope discriminates the two message kinds a core may publish to
// a plugin's reply topic. Since both kinds share one topic, this repo
// tags them explicitly rather than relying on best-effort field sniffing.
type replyEnvelope struct {
	Request *RequestOperationMessage `json:"request,omitempty"`
	Reject  *RejectOperationMessage  `json:"reject,omitempty"`
}

// responseEnvelope discriminates the two message kinds a plugin may
// publish to a core's response topic.
type responseEnvelope struct {
	Confirm           *ConfirmConnectionMessage          `json:"confirm,omitempty"`
	NoLongerAvailable *OperationNoLongerAvailableMessage `json:"noLongerAvailable,omitempty"`
}

// closeEnvelope discriminates graceful from graceless close notifications
// sharing one inbound close topic.
type closeEnvelope struct {
	Graceful  *GracefulCloseConnectionMessage  `json:"graceful,omitempty"`
	Graceless *GracelessCloseConnectionMessage `json:"graceless,omitempty"`
}
