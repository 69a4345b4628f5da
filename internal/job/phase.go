package job

// Phase 任务阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseValidating Phase = "validating"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseFinalizing Phase = "finalizing"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// 阶段对应的提示文案
var PhaseMessages = map[Phase]string{
	PhaseIdle:       "Waiting for a statement...",
	PhaseUploading:  "Uploading your statement...",
	PhaseValidating: "Validating file format...",
	PhaseAnalyzing:  "Analyzing transaction patterns...",
	PhaseFinalizing: "Generating AI insights...",
	PhaseSucceeded:  "Analysis complete",
	PhaseFailed:     "Analysis failed",
}

// PhaseFor 按进度划分运行中的阶段
func PhaseFor(progress float64) Phase {
	switch {
	case progress < 25:
		return PhaseUploading
	case progress < 50:
		return PhaseValidating
	case progress < 75:
		return PhaseAnalyzing
	default:
		return PhaseFinalizing
	}
}

// Terminal 是否为终止阶段
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Message 阶段提示文案
func (p Phase) Message() string {
	return PhaseMessages[p]
}
