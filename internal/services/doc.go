// Package services defines shared utilities consumed by the conversion
// workflow and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs and orchestrator phases for logging.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     classify a failed submission (blocked, invalid, failed) with errors.Is.
//
// Use these helpers when wiring new workflow logic so error handling and
// observability stay uniform across the converter.
package services
