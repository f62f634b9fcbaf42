// Dmkit serves dialog-management policy resolution over HTTP.
//
// For each dialog turn it matches the understood intent and slots against
// a hot-reloaded set of product policies and returns the selected
// response: an answer template, any user-function results it depends on
// and the dialog state to carry into the next turn.
//
// Usage:
//
//	# Start the server with built-in defaults
//	dmkit run
//
//	# Start with a configuration file
//	dmkit run --config /etc/dmkit/config.yaml
//
//	# Check a product index and every domain file it names
//	dmkit validate --products conf/dm/products.json
//
//	# Resolve one request offline
//	dmkit resolve --request turn.json
//
//	# Inspect the turn journal
//	dmkit journal query --since 1h --outcome no_policy
package main

func main() {
	Execute()
}
