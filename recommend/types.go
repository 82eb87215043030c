// Package recommend generates, ranks, and tracks next-best-action
// recommendations produced from score signals and matched rules.
package recommend

import "time"

// ActionType is one of the 15 standard next-best-action types.
type ActionType string

const (
	Remind          ActionType = "Remind"
	Reassign        ActionType = "Reassign"
	SplitTask       ActionType = "SplitTask"
	AutoCollect     ActionType = "AutoCollect"
	ReduceScope     ActionType = "ReduceScope"
	Escalate        ActionType = "Escalate"
	PauseExplain    ActionType = "PauseExplain"
	Complete        ActionType = "Complete"
	Review          ActionType = "Review"
	Approve         ActionType = "Approve"
	SubmitEvidence  ActionType = "SubmitEvidence"
	UpdateStatus    ActionType = "UpdateStatus"
	RequestHelp     ActionType = "RequestHelp"
	ScheduleMeeting ActionType = "ScheduleMeeting"
	GenerateReport  ActionType = "GenerateReport"
)

// ActionTypeInfo is the immutable metadata for one action type.
type ActionTypeInfo struct {
	Code           ActionType
	Name           string
	Description    string
	AutoExecutable bool
}

// ActionTypes is the fixed catalog of recommendation action types.
var ActionTypes = map[ActionType]ActionTypeInfo{
	Remind:          {Code: Remind, Name: "Send Reminder", Description: "Send reminder notification to task owner", AutoExecutable: true},
	Reassign:        {Code: Reassign, Name: "Reassign Task", Description: "Transfer task to another owner", AutoExecutable: false},
	SplitTask:       {Code: SplitTask, Name: "Split Task", Description: "Break large task into smaller subtasks", AutoExecutable: false},
	AutoCollect:     {Code: AutoCollect, Name: "Auto-Collect Evidence", Description: "Trigger automated evidence collection", AutoExecutable: true},
	ReduceScope:     {Code: ReduceScope, Name: "Reduce Scope", Description: "Defer non-mandatory controls or reduce complexity", AutoExecutable: false},
	Escalate:        {Code: Escalate, Name: "Escalate", Description: "Escalate to manager or admin", AutoExecutable: true},
	PauseExplain:    {Code: PauseExplain, Name: "Pause & Explain", Description: "Pause workflow and provide explanation", AutoExecutable: false},
	Complete:        {Code: Complete, Name: "Complete Task", Description: "Mark task as completed", AutoExecutable: false},
	Review:          {Code: Review, Name: "Review Item", Description: "Review pending item", AutoExecutable: false},
	Approve:         {Code: Approve, Name: "Approve", Description: "Approve pending approval request", AutoExecutable: false},
	SubmitEvidence:  {Code: SubmitEvidence, Name: "Submit Evidence", Description: "Submit required evidence for control", AutoExecutable: false},
	UpdateStatus:    {Code: UpdateStatus, Name: "Update Status", Description: "Update item status", AutoExecutable: false},
	RequestHelp:     {Code: RequestHelp, Name: "Request Help", Description: "Request assistance from support", AutoExecutable: false},
	ScheduleMeeting: {Code: ScheduleMeeting, Name: "Schedule Meeting", Description: "Schedule coordination meeting", AutoExecutable: false},
	GenerateReport:  {Code: GenerateReport, Name: "Generate Report", Description: "Generate progress or compliance report", AutoExecutable: true},
}

// Status is one recommendation lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusAccepted  Status = "Accepted"
	StatusRejected  Status = "Rejected"
	StatusExecuted  Status = "Executed"
	StatusDismissed Status = "Dismissed"
	StatusExpired   Status = "Expired"
)

// Terminal reports whether no further transitions may originate from
// the status. Every state except Pending is absorbing.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Recommendation is one ranked, time-bounded suggested action.
type Recommendation struct {
	ID         string
	TenantID   *string
	EntityType string
	EntityID   string

	ActionType   ActionType
	TargetUserID string
	TargetRole   string

	Title     string
	Rationale string

	// Confidence is 0-100; Priority orders presentation, lower first.
	Confidence int
	Priority   int

	Status    Status
	ExpiresAt *time.Time

	ActedBy string
	ActedAt *time.Time

	CreatedAt time.Time
}
