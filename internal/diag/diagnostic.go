package diag

// Diagnostic is one finding reported by a pass or the runtime. Subject names
// the program construct it concerns (a function, cell, or instance name);
// the compiler has no source positions to point at.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Subject  string
	Message  string
}
