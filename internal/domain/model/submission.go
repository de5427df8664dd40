package model

import "time"

type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "Pending"
	StatusInQueue           SubmissionStatus = "InQueue"
	StatusProcessing        SubmissionStatus = "Processing"
	StatusAccepted          SubmissionStatus = "Accepted"
	StatusWrongAnswer       SubmissionStatus = "WrongAnswer"
	StatusTimeLimitExceeded SubmissionStatus = "TimeLimitExceeded"
	StatusCompilationError  SubmissionStatus = "CompilationError"
	StatusRuntimeError      SubmissionStatus = "RuntimeError"
	StatusSystemError       SubmissionStatus = "SystemError" // Error in our system/judge
)

// Verdict is the aggregate outcome of judging one piece of code against a
// problem's full test case set. The same shape feeds contest submissions and
// duel arbitration.
type Verdict struct {
	Status      SubmissionStatus `json:"status"`
	Passed      int              `json:"passed"`
	Total       int              `json:"total"`
	CaseResults []CaseResult     `json:"case_results,omitempty"`
	// FirstFailure carries details of the earliest failing visible case.
	// Hidden cases only report pass/fail, never inputs or outputs.
	FirstFailure *CaseResult `json:"first_failure,omitempty"`
}

func (v Verdict) Accepted() bool {
	return v.Status == StatusAccepted
}

type CaseResult struct {
	TestCaseID     string           `json:"test_case_id"`
	Hidden         bool             `json:"hidden"`
	Status         SubmissionStatus `json:"status"`
	Input          string           `json:"input,omitempty"`
	ExpectedOutput string           `json:"expected_output,omitempty"`
	ActualOutput   string           `json:"actual_output,omitempty"`
	TimeMs         *int             `json:"time_ms,omitempty"`
	MemoryKb       *int             `json:"memory_kb,omitempty"`
	CompileOutput  string           `json:"compile_output,omitempty"`
}

// ContestSubmission is the persisted, append-only record a contest scoreboard
// is derived from.
type ContestSubmission struct {
	ID               string           `json:"id"`
	ContestID        string           `json:"contest_id"`
	ProblemID        string           `json:"problem_id"`
	UserID           string           `json:"user_id"`
	Code             string           `json:"code,omitempty"`
	Language         string           `json:"language"`
	Status           SubmissionStatus `json:"status"`
	IsAccepted       bool             `json:"is_accepted"`
	Points           int              `json:"points"`
	MinutesFromStart int              `json:"minutes_from_start"`
	IsVirtual        bool             `json:"is_virtual"`
	SubmittedAt      time.Time        `json:"submitted_at"`
}
