// Package redisview backs the xview projection store and control channel
// with Redis.
//
// Layout under the configured key prefix:
//
//	<prefix>:col:<aggregate-id>   JSON-encoded projection history collection
//	<prefix>:label:<label>        set of aggregate ids whose latest version
//	                              carries the label
//	<prefix>:ctl:<topic>          pub/sub channel for control envelopes
//
// The label index is maintained on Save so queryWhere("label") resolves
// without scanning; stale members are filtered on read.
package redisview
