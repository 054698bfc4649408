// Package observability provides an extension that records scheduler
// lifecycle metrics through an OpenTelemetry meter.
package observability
