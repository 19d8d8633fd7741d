// Package streaming defines the bulk range-transfer collaborator spec.md
// §1 calls out as external and invoked opaquely: "the surrounding storage
// engine... repair streaming... are deliberately out of scope". Engine is
// the narrow interface every phase of pkg/join and pkg/nodeops drives
// without this module caring whether the real implementation is
// repair-based or the legacy streaming path (spec.md §4.4's
// "repair-based or legacy depending on config").
package streaming
