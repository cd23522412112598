//go:build !linux && !windows && !darwin

package action

// No power-control support on this platform; every kind fails cleanly.
var handlers = map[Kind]func() error{}
