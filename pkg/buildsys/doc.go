// Package buildsys implements the small task runner that drives the kombu build.
// Tasks are named Go (or Starlark) functions that run shell commands through
// mvdan.cc/sh and call each other directly. Execution is strictly sequential and
// nothing is cached: running a task twice runs its body twice.
package buildsys
