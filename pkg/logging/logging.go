// Package logging constructs the bracketed-prefix *log.Logger instances used
// throughout ezchain, one per component, the same way the protocol's
// anchor-validator ancestor gave each subsystem its own prefixed logger.
package logging

import (
	"log"
	"os"
)

// New returns a logger prefixed with "[component] " writing to stderr.
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
