package compiler

import "fmt"

// Error is a compile error at a source line. Compile returns several of
// them combined with errors.Join; use errors.As to get the first.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}
