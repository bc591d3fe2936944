// Package types provides the identifiers and error taxonomy shared across
// every kernel component.
//
// Identifiers:
//   - PID: process identifier; PID 1 is the kernel's own process
//   - TID: thread identifier, unique per process
//   - CID: process-local connection handle
//
// Errors:
//   - Kind: the closed set of kernel error classes
//   - Error: a typed error carrying one Kind, compared with errors.Is
//     against the package sentinels (ErrServerNotFound, ErrBadAddress, ...)
package types
