// Package cache holds encoded images keyed by painting revision so that
// polling clients do not re-encode an unchanged canvas.
package cache
