// Package cond tracks #if nesting and decides whether the current line is
// compiled.
package cond

import (
	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
)

// Frame is one level of #if/#ifdef/#ifndef nesting.
type Frame struct {
	// WasCompiling is the compiling state when the frame opened.
	WasCompiling bool
	// TrueSeen is set once any branch of the frame was taken.
	TrueSeen bool
	// ElseSeen is set by #else.
	ElseSeen bool
	IfPos    token.Position
	ElsePos  token.Position
	// File identifies the file that opened the frame.
	File int
}

// Stack is the conditional state of one run.
type Stack struct {
	frames    []Frame
	max       int
	compiling bool
}

// New returns an empty stack allowing max levels of nesting.
func New(max int) *Stack {
	return &Stack{max: max, compiling: true}
}

// Reset drops every frame and resumes compiling.
func (s *Stack) Reset() {
	s.frames = s.frames[:0]
	s.compiling = true
}

// Compiling reports whether lines at the current position are compiled.
func (s *Stack) Compiling() bool { return s.compiling }

// Depth returns the number of open frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Max returns the nesting limit.
func (s *Stack) Max() int { return s.max }

// Top returns the innermost frame, or nil.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Enter opens a frame for #if, #ifdef or #ifndef. test is called only when
// the enclosing context is compiling; dead branches are never evaluated.
// Going past the nesting limit returns a *diag.FatalError.
func (s *Stack) Enter(pos token.Position, file int, test func() bool) error {
	if len(s.frames) >= s.max {
		return &diag.FatalError{Pos: pos, Msg: "#if nesting too deep"}
	}
	f := Frame{WasCompiling: s.compiling, IfPos: pos, File: file}
	taken := false
	if s.compiling {
		taken = test()
	}
	f.TrueSeen = taken
	s.frames = append(s.frames, f)
	s.compiling = taken
	return nil
}

// owned returns the top frame if it belongs to file.
func (s *Stack) owned(pos token.Position, file int, directive string) (*Frame, error) {
	f := s.Top()
	if f == nil || f.File != file {
		return nil, diag.Errorf(pos, "#%s without #if", directive)
	}
	return f, nil
}

// Elif switches to the next branch of the current frame. test runs only if
// no earlier branch was taken and the enclosing context is compiling.
func (s *Stack) Elif(pos token.Position, file int, test func() bool) error {
	f, err := s.owned(pos, file, "elif")
	if err != nil {
		return err
	}
	if f.ElseSeen {
		return diag.Errorf(pos, "#elif after #else (#else at line %d)", f.ElsePos.Line)
	}
	if f.WasCompiling && !f.TrueSeen {
		s.compiling = test()
		f.TrueSeen = s.compiling
		return nil
	}
	s.compiling = false
	return nil
}

// Else switches to the final branch of the current frame.
func (s *Stack) Else(pos token.Position, file int) error {
	f, err := s.owned(pos, file, "else")
	if err != nil {
		return err
	}
	if f.ElseSeen {
		return diag.Errorf(pos, "#else after #else (first #else at line %d)", f.ElsePos.Line)
	}
	f.ElseSeen = true
	f.ElsePos = pos
	s.compiling = f.WasCompiling && !f.TrueSeen
	if s.compiling {
		f.TrueSeen = true
	}
	return nil
}

// Endif closes the current frame and restores the state it opened with.
func (s *Stack) Endif(pos token.Position, file int) error {
	f, err := s.owned(pos, file, "endif")
	if err != nil {
		return err
	}
	s.compiling = f.WasCompiling
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Unterminated pops every frame opened by file (returned outermost first)
// and restores the compiling state that held before the outermost of them.
func (s *Stack) Unterminated(file int) []Frame {
	i := len(s.frames)
	for i > 0 && s.frames[i-1].File == file {
		i--
	}
	if i == len(s.frames) {
		return nil
	}
	open := append([]Frame(nil), s.frames[i:]...)
	s.compiling = open[0].WasCompiling
	s.frames = s.frames[:i]
	return open
}
