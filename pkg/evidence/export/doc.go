// Package export renders journal records for offline inspection.
package export
