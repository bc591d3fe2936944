// Package providers groups the userspace services that ship with the
// kernel: the name service, the ticktimer, and the watchdog timeout
// helper. Each service is an ordinary process talking to the kernel
// through the client package; nothing here has privileged access.
package providers
