// Package job turns loosely typed front-end input into a validated,
// self-contained conversion job descriptor.
//
// RawInput mirrors what a user can edit (free text, checkbox states, picked
// paths). Session owns in-flight selections and keeps the three model-source
// inputs mutually exclusive while the user edits them. Build resolves the
// model source, gates dependent module flags, parses the optional output size,
// and derives the attention implementation from the compute unit. Build fails
// only with a *ValidationError.
package job
