package entity

// Progress steps. 1..5 are in-progress checkpoints.
const (
	StepFailed     = -1
	StepPending    = 0
	StepAnalyzing  = 1
	StepGenerating = 2
	StepCodeReady  = 3
	StepRendering  = 4
	StepFinalizing = 5
	StepComplete   = 6
)

// Progress is the latest snapshot of a job, keyed by its handle.
type Progress struct {
	Step     int    `json:"step"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	VideoURL string `json:"video_url,omitempty"`
	Code     string `json:"code,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

func (p Progress) Terminal() bool {
	return IsTerminalStep(p.Step)
}

func (p Progress) Succeeded() bool {
	return p.Step == StepComplete
}

func IsTerminalStep(step int) bool {
	return step == StepComplete || step == StepFailed
}

// FailedProgress builds the terminal failure record carrying msg.
func FailedProgress(msg string) Progress {
	return Progress{Step: StepFailed, Status: "error", Message: msg}
}

// PendingProgress is what a reader sees before the first checkpoint.
func PendingProgress() Progress {
	return Progress{Step: StepPending, Status: "pending", Message: "Job is queued or not found"}
}
