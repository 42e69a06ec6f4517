package sequence

import (
	_ "embed"
)

//go:embed demo.toml
var demoTOML []byte

// Demo returns the built-in example sequence, used when no sequence file is
// given.
func Demo() *Sequence {
	s, err := Parse(demoTOML)
	if err != nil {
		panic("sequence: built-in demo is invalid: " + err.Error())
	}
	return s
}
