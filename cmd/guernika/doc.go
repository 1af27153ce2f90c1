// Command guernika converts Stable Diffusion models to Core ML for the
// Guernika app.
//
// The convert command assembles a job from flags and remembered preferences,
// checks that the Xcode Core ML compiler is available, and runs the
// torch2coreml converter. Settings of every successful conversion become the
// defaults for the next one. Supporting commands report environment status,
// show stored preferences, list past runs, and manage the configuration file.
package main
