package models

// ProcessingStatus tracks a post's media pipeline.
type ProcessingStatus string

const (
	ProcessingUploading  ProcessingStatus = "uploading"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingReady      ProcessingStatus = "ready"
	ProcessingFailed     ProcessingStatus = "failed"
	ProcessingCompleted  ProcessingStatus = "completed"
)

// Visible reports whether media in this state can be served to viewers.
func (s ProcessingStatus) Visible() bool {
	return s == ProcessingReady || s == ProcessingCompleted
}

// Terminal reports whether no further processing transition can leave s.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingReady || s == ProcessingCompleted || s == ProcessingFailed
}

// ModerationStatus tracks the safety verdict for a post.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationFlagged  ModerationStatus = "flagged"
)

// processingTransitions lists the allowed processing moves. There is no way
// back to uploading; retries create a new post.
var processingTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingUploading:  {ProcessingProcessing, ProcessingFailed},
	ProcessingProcessing: {ProcessingCompleted, ProcessingFailed},
}

var moderationTransitions = map[ModerationStatus][]ModerationStatus{
	ModerationPending: {ModerationApproved, ModerationFlagged},
}

// CanTransitionProcessing reports whether from -> to is an allowed move.
func CanTransitionProcessing(from, to ProcessingStatus) bool {
	for _, next := range processingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionModeration reports whether from -> to is an allowed move.
func CanTransitionModeration(from, to ModerationStatus) bool {
	for _, next := range moderationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialProcessingStatus is the state a freshly ingested post starts in.
func InitialProcessingStatus(kind MediaKind) ProcessingStatus {
	if kind.NeedsTranscoding() {
		return ProcessingUploading
	}
	return ProcessingReady
}
