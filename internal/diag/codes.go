package diag

import "fmt"

// Code identifies a diagnostic category. Blocks of a thousand are reserved
// per pass family.
type Code uint16

const (
	// UnknownCode is the fallback category.
	UnknownCode Code = 0

	// Graph structure (identity tracker).
	GraphInfo          Code = 1000
	GraphCycle         Code = 1001
	GraphMultipleRoots Code = 1002
	GraphUnreachable   Code = 1003

	// Globalization.
	GlobInfo               Code = 2000
	GlobUnresolvedReceiver Code = 2001
	GlobResidualObject     Code = 2002
	GlobEmittedCell        Code = 2003
	GlobEmittedFunc        Code = 2004

	// Slot inlining.
	InlineInfo         Code = 3000
	InlineSubstituted  Code = 3001
	InlineKeptExported Code = 3002
	InlinePrunedCell   Code = 3003

	// Value semantics.
	ValsemInfo          Code = 4000
	ValsemConverted     Code = 4001
	ValsemKeptAliasable Code = 4002

	// Calling convention.
	AbiInfo     Code = 5000
	AbiAdjusted Code = 5001

	// Boundary runtime.
	RtInfo               Code = 6000
	RtFunctionNotFound   Code = 6001
	RtTypeBoundViolation Code = 6002
)

func (c Code) String() string {
	return fmt.Sprintf("SLB%04d", uint16(c))
}
