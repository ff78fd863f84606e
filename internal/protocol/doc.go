// Package protocol defines the MQTT contract between the vault and its hubs:
// topic construction and parsing, payload schemas, and payload validation.
//
// Topics follow the grammar hubs/{hub_id}/v{version}/{category}/..., with a
// reserved "broadcast" hub segment for vault-wide commands. The Topics type
// provides builders for every concrete topic and wildcard pattern; ParseTopic
// inverts the builders so that routing code never string-matches topics by
// hand.
//
// Payload decoders reject structurally invalid payloads with *SchemaViolation
// and never mutate vault state; callers treat a decode failure as "record and
// drop". Semantic oddities in well-formed payloads (unknown sensors, stale
// timestamps) are the reconciler's business, not this package's.
package protocol
