// Package internal holds identifier and secret generation shared by the
// authcore packages. Nothing here performs I/O beyond crypto/rand reads.
package internal
