// Package infra contains technical adapters such as the zerolog-backed
// logger. These packages should depend only on the interfaces defined in
// the core packages.
package infra
