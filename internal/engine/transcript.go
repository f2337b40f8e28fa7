package engine

// Step is one executed git command in an operation transcript.
type Step struct {
	Command string `json:"command"`
	Status  string `json:"status"` // "ok" or "failed"
	Message string `json:"message,omitempty"`
}

// Transcript records the git steps an operation ran, in order. It is
// returned alongside the structured result so callers can see what
// actually happened without re-running anything.
type Transcript struct {
	Steps []Step `json:"steps"`
}

// Record appends a step with its outcome and returns err unchanged.
func (t *Transcript) Record(command string, err error) error {
	step := Step{Command: command, Status: "ok"}
	if err != nil {
		step.Status = "failed"
		step.Message = err.Error()
	}
	t.Steps = append(t.Steps, step)
	return err
}
