// Package processor wires the pipeline together from command-line flags:
// it opens the state database, builds the provider chain, and runs the
// selected mode (serve, document, quiz, stats).
package processor
