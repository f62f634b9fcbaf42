// Package config provides configuration management for dmkit.
//
// Configuration is read from a YAML file, decoded on top of the defaults in
// defaults.go, overridden by environment variables and then validated. Every
// field error is reported at once.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention DMKIT_SECTION_FIELD:
//
//   - DMKIT_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - DMKIT_POLICY_PRODUCTS_FILE overrides policy.products_file
//   - DMKIT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A variable that is set to a malformed value fails loading.
//
// # Example
//
//	server:
//	  listen_address: "0.0.0.0:8010"
//	  rate_limit:
//	    requests_per_second: 50
//	    max_concurrent: 200
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: "frontend"
//	        key: "${secret:frontend-key}"
//	        products: ["default"]
//	  tls:
//	    enabled: true
//	    cert_file: "certs/server.crt"
//	    key_file: "certs/server.key"
//	policy:
//	  products_file: "conf/dm/products.json"
//	  watch_mode: "poll"
//	  poll_interval: "1s"
//	remote:
//	  services_file: "conf/dm/services.json"
//	evidence:
//	  enabled: true
//	  backend: "sqlite"
//	  sqlite:
//	    driver: "sqlite"
//	    path: "data/turns.db"
//	  retention:
//	    days: 30
//	    prune_schedule: "0 3 * * *"
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Singleton
//
// Initialize stores the loaded configuration for process-wide access through
// GetConfig. Components should still receive their section explicitly.
package config
