// Package deps checks whether external commands are installed and answer a
// version query.
package deps
