// Package handler provides internal reflection-based executor invocation.
//
// This package is internal and should not be imported directly. The job
// master wraps every registered executor in a Handler, which decodes the
// stored job config into the executor's parameter type before calling it.
package handler
