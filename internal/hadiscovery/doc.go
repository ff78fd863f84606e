// Package hadiscovery probes a Home Assistant instance for the addon.
//
// Discovery runs in two phases:
//
//  1. REST: fetch /api/services and /api/states with bearer-token auth
//     to learn what the instance exposes.
//  2. Websocket: complete the auth handshake against /api/websocket and
//     request get_config to confirm realtime access works.
//
// Both phases must succeed for a discovery result; the combined result
// is cached so repeated callers don't hammer the instance. A forced
// refresh discards the cache.
//
// # Usage
//
//	client, err := hadiscovery.New(cfg.HomeAssistant)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := client.DiscoverAll(ctx, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Discovery is serialised
// internally; concurrent callers share one in-flight probe's result.
package hadiscovery
