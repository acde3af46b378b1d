package types

// TestCase represents a single input/output pair used to evaluate a submission.
// Test cases are immutable once loaded.
type TestCase struct {
	// Index is the zero-based position of the test case in ascending
	// case-number order. Reports are keyed by it.
	Index int `json:"index"`

	// CaseNumber is the number declared in the archive entry names.
	CaseNumber int `json:"case_number"`

	// Input is the data fed to the program on stdin, verbatim.
	Input string `json:"input"`

	// ExpectedOutput is the expected output with surrounding whitespace trimmed.
	ExpectedOutput string `json:"expected_output"`
}
