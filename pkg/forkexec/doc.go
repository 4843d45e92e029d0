// Package forkexec starts the root tracee: a raw clone that rearranges
// file descriptors, applies resource limits, optionally loads a seccomp
// prefilter and calls PTRACE_TRACEME before execve.
//
// The process stops with SIGTRAP right after a successful execve, so the
// tracer that called Start on a locked OS thread owns its first stop.
//
// seccomp requires kernel >= 3.5, dup3 and prlimit require >= 2.6.36
package forkexec
