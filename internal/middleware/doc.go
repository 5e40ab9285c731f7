// Package middleware provides the HTTP middleware of the catalogue server:
// structured request logging, Prometheus request metrics labelled by route
// template, and gzip compression of JSON and catalogue bodies.
package middleware
