// Package nsq implements the client-side TCP protocol for nsqd: a producer
// API to publish one, many, or deferred messages, and a consumer API to
// subscribe to a topic/channel, receive messages, and acknowledge them.
//
// The package speaks to exactly one nsqd per connection. Service discovery
// (nsqlookupd), multi-broker fan-out, and persistent retry storage are not
// part of this package; callers that need them compose it with their own
// orchestration.
package nsq

// Version is the client library version advertised in the default
// user_agent sent during IDENTIFY.
const Version = "1.0.0"
