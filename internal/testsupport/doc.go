// Package testsupport builds isolated configs, stub executables, and stores
// for package tests.
package testsupport
