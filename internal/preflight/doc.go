// Package preflight probes the local environment before a conversion runs.
//
// The Prober answers two questions: is the companion Guernika app installed,
// and is the Xcode Core ML compiler toolchain usable. The toolchain answer is
// cached after the first probe and only refreshed on demand. The directory
// checks here are advisory and never fail a job on their own.
package preflight
