// Package query validates journal queries built from command-line flags.
package query
