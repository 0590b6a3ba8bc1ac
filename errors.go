package modularxl

import "errors"

// Error kinds in increasing severity (spec.md §7).
var (
	// ErrInvalidImage is returned when an image has a channel with a
	// negative width or height.
	ErrInvalidImage = errors.New("modularxl: invalid image: negative channel dimensions")

	// ErrMissingGlobalTree is returned by Decode when the group header
	// declares use_global_tree but the caller supplied no GlobalTree in
	// DecodeOptions.
	ErrMissingGlobalTree = errors.New("modularxl: stream requires a global tree but none was supplied")

	// ErrCorruptStream is returned (wrapped, via fmt.Errorf's %w) whenever
	// the entropy collaborator's final-state check fails, a tree decodes
	// out of range, or a header bundle fails to parse.
	ErrCorruptStream = errors.New("modularxl: corrupt stream")
)
