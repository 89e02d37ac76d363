// Package harvest defines the core types, interfaces, and error taxonomy shared
// by the politeness gate, source adapters, pagination crawler, normalizer,
// enrichment resolver, and output writer of the organization harvester.
package harvest
