// Package converter runs the external Core ML Stable Diffusion conversion.
//
// Args flattens a job.Descriptor into the torch2coreml command line. Client
// launches the configured Python module, streams its output line by line,
// and wraps failures in services.ErrConversion with the tail of the output
// attached for diagnosis. Conversions have no timeout.
package converter
