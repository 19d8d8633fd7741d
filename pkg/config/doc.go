// Package config loads this node's on-disk YAML configuration and layers
// command-line flag overrides on top of it, the way cmd/warren/apply.go and
// cmd/warren/main.go do for the teacher's resource files and global flags.
// It has no knowledge of gossip, group 0, or streaming: it only produces the
// plain values (addresses, durations, counts) that pkg/coordinator wires
// into those packages' Config structs at startup.
package config
