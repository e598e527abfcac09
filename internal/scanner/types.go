package scanner

import (
	"time"

	"factory/internal/registry"
)

// Import is one import/reference statement of a scanned file, kept for the
// type resolver's alias-to-path mapping.
type Import struct {
	Module     string
	RawImport  string
	Alias      string
	Items      []string
	IsRelative bool
	Level      int // Python relative import depth (number of leading dots)
	Line       int
}

// SourceFile is the per-file scan output: the annotated services found plus
// the file's import table.
type SourceFile struct {
	Path     string
	Language string
	Module   string
	Imports  []Import
	Services []registry.ServiceSignature
	ParsedAt time.Time
}

// Warning records one non-fatal scan failure. Warnings are aggregated into a
// single end-of-run summary.
type Warning struct {
	File    string
	Message string
}

// Result is the reduce output of one scan pass over one source root.
type Result struct {
	Root     string
	Language string // dominant language tag for the registry
	Services map[string]registry.ServiceSignature
	Files    map[string]*SourceFile
	Warnings []Warning
}

// AnnotationMatch is the tagged output of one scanning strategy for one
// callable. The scanner merges structural and comment matches for the same
// callable before emitting a ServiceSignature.
type AnnotationMatch struct {
	Strategy  Strategy
	Signature registry.ServiceSignature
}

// Strategy identifies which scanning pass produced a match.
type Strategy string

const (
	StrategyStructural Strategy = "structural"
	StrategyComment    Strategy = "comment"
)
