// Package client provides the `bgq` command-line interface.
//
// Commands other than serve open the queue's data directory directly, so
// they must not run while a server holds it.
//
// Usage
//
//	bgq serve --http 127.0.0.1:8080
//
//	bgq add identifyProfile '{"identifier":"u1"}' --group-start identified_profile_u1
//	bgq add trackEvent '{"identifier":"u1","name":"opened"}' \
//	    --blocking-group identified_profile_u1
//
//	bgq run
//	bgq status
//	bgq inventory --filter 'type == "trackEvent"'
//
// # Configuration
//
// Settings come from defaults, then --config (JSON or YAML), then the
// --env-file dotenv file and BGQ_* variables, then --data-dir, --log-level
// and --log-format.
package client
