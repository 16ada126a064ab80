// Package types provides shared type definitions used across gamesmith packages.
// This package exists to break import cycles between orchestrator, executor, and
// session. Types in this package should be foundational data structures with no
// complex dependencies.
package types

import "fmt"

// FragmentTarget identifies one of the three fragment slots of a session.
type FragmentTarget string

const (
	TargetStructure FragmentTarget = "structure"
	TargetStyle     FragmentTarget = "style"
	TargetBehavior  FragmentTarget = "behavior"
)

// OperationKind identifies one variant of the model's tool-call protocol.
type OperationKind string

const (
	OpWriteFragment OperationKind = "write_fragment"
	OpReplaceRange  OperationKind = "replace_range"
	OpGenerateImage OperationKind = "generate_image"
)

// Operation is a single instruction emitted by the model. The kind selects
// which fields are meaningful:
//
//	write_fragment: Target, Content
//	replace_range:  Target, StartLine, EndLine, Content (1-indexed, inclusive)
//	generate_image: Name, Prompt
//
// Operations are transient: constructed once per orchestration cycle, consumed
// once by the executor, never persisted individually. Kind may carry a value
// outside the known set; the executor skips those rather than failing the
// batch.
type Operation struct {
	Kind OperationKind

	Target  FragmentTarget
	Content string

	StartLine int
	EndLine   int

	Name   string
	Prompt string
}

// Describe returns a short human-readable label for summary lines and logs.
func (op Operation) Describe() string {
	switch op.Kind {
	case OpWriteFragment:
		return fmt.Sprintf("write %s", op.Target)
	case OpReplaceRange:
		return fmt.Sprintf("replace %s lines %d-%d", op.Target, op.StartLine, op.EndLine)
	case OpGenerateImage:
		return fmt.Sprintf("generate image %q", op.Name)
	default:
		return fmt.Sprintf("unknown operation %q", string(op.Kind))
	}
}

// HasTarget reports whether this operation kind addresses a fragment slot.
func (op Operation) HasTarget() bool {
	return op.Kind == OpWriteFragment || op.Kind == OpReplaceRange
}
