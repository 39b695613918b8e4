// Package pipeline defines the per-item processing step the iteration driver
// runs. A step either succeeds or returns an error; the driver's failure
// policy decides what happens next.
package pipeline
