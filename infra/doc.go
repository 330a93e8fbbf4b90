// Package infra holds the adapters behind the core ports: contact and
// schedule stores, the MQTT publisher, metrics sinks and error reporting.
// Nothing under core imports these packages.
package infra
