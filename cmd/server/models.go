package main

import (
	"time"

	"github.com/complyflow/engine/recommend"
	"github.com/complyflow/engine/rules"
	"github.com/complyflow/engine/scoring"
	"github.com/complyflow/engine/trigger"
)

// API request and response models.

// EventRequest is one domain event posted for processing. The payload
// becomes the evaluation context for rule guards and the event payload
// for trigger guards.
type EventRequest struct {
	Name       string         `json:"name"`
	TenantID   *string        `json:"tenantId,omitempty"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Payload    map[string]any `json:"payload"`
	OccurredAt *time.Time     `json:"occurredAt,omitempty"`
}

// EventResponse summarizes one evaluation pass.
type EventResponse struct {
	TriggerEvent   string              `json:"triggerEvent"`
	TotalEvaluated int                 `json:"totalEvaluated"`
	TotalMatched   int                 `json:"totalMatched"`
	Stopped        bool                `json:"stopped"`
	Executions     []ExecutionResponse `json:"executions"`
}

// ExecutionResponse is one rule execution row in API responses.
type ExecutionResponse struct {
	ID            string               `json:"id"`
	RuleCode      string               `json:"ruleCode"`
	Matched       bool                 `json:"matched"`
	Status        string               `json:"status"`
	ActionResults []rules.ActionResult `json:"actionResults,omitempty"`
	Error         string               `json:"error,omitempty"`
	DurationMs    int64                `json:"durationMs"`
	ExecutedAt    time.Time            `json:"executedAt"`
}

func toExecutionResponse(e *rules.RuleExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:            e.ID,
		RuleCode:      e.RuleCode,
		Matched:       e.Matched,
		Status:        string(e.Status),
		ActionResults: e.ActionResults,
		Error:         e.Error,
		DurationMs:    e.Duration.Milliseconds(),
		ExecutedAt:    e.ExecutedAt,
	}
}

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	TriggerEvent  string         `json:"triggerEvent,omitempty"`
	Condition     string         `json:"condition,omitempty"`
	Expression    string         `json:"expression,omitempty"`
	Actions       []rules.Action `json:"actions,omitempty"`
	Priority      int            `json:"priority"`
	StopOnMatch   bool           `json:"stopOnMatch,omitempty"`
	TenantID      *string        `json:"tenantId,omitempty"`
	EffectiveFrom *time.Time     `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time     `json:"effectiveTo,omitempty"`
	Active        bool           `json:"active"`
}

func (r *RuleRequest) toRule() *rules.Rule {
	return &rules.Rule{
		Code:          r.Code,
		Name:          r.Name,
		Description:   r.Description,
		Category:      r.Category,
		TriggerEvent:  r.TriggerEvent,
		ConditionJSON: r.Condition,
		Expression:    r.Expression,
		Actions:       r.Actions,
		Priority:      r.Priority,
		StopOnMatch:   r.StopOnMatch,
		TenantID:      r.TenantID,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Active:        r.Active,
	}
}

// RuleResponse is a rule in API responses.
type RuleResponse struct {
	ID            string         `json:"id"`
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	TriggerEvent  string         `json:"triggerEvent,omitempty"`
	Condition     string         `json:"condition,omitempty"`
	Expression    string         `json:"expression,omitempty"`
	Actions       []rules.Action `json:"actions,omitempty"`
	Priority      int            `json:"priority"`
	StopOnMatch   bool           `json:"stopOnMatch"`
	TenantID      *string        `json:"tenantId,omitempty"`
	EffectiveFrom *time.Time     `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time     `json:"effectiveTo,omitempty"`
	Version       int            `json:"version"`
	Active        bool           `json:"active"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func toRuleResponse(r *rules.Rule) RuleResponse {
	return RuleResponse{
		ID:            r.ID,
		Code:          r.Code,
		Name:          r.Name,
		Description:   r.Description,
		Category:      r.Category,
		TriggerEvent:  r.TriggerEvent,
		Condition:     r.ConditionJSON,
		Expression:    r.Expression,
		Actions:       r.Actions,
		Priority:      r.Priority,
		StopOnMatch:   r.StopOnMatch,
		TenantID:      r.TenantID,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Version:       r.Version,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// TriggerRequest is the request body for creating or updating an event
// trigger.
type TriggerRequest struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Description        string  `json:"description,omitempty"`
	EventType          string  `json:"eventType"`
	AgentName          string  `json:"agentName,omitempty"`
	AgentAction        string  `json:"agentAction,omitempty"`
	Condition          string  `json:"condition,omitempty"`
	CooldownSeconds    int     `json:"cooldownSeconds,omitempty"`
	MaxDailyExecutions int     `json:"maxDailyExecutions,omitempty"`
	DelaySeconds       int     `json:"delaySeconds,omitempty"`
	TenantID           *string `json:"tenantId,omitempty"`
	Active             bool    `json:"active"`
}

func (r *TriggerRequest) toTrigger() *trigger.EventTrigger {
	return &trigger.EventTrigger{
		Code:               r.Code,
		Name:               r.Name,
		Description:        r.Description,
		EventType:          r.EventType,
		AgentName:          r.AgentName,
		AgentAction:        r.AgentAction,
		ConditionJSON:      r.Condition,
		CooldownSeconds:    r.CooldownSeconds,
		MaxDailyExecutions: r.MaxDailyExecutions,
		DelaySeconds:       r.DelaySeconds,
		TenantID:           r.TenantID,
		Active:             r.Active,
	}
}

// TriggerResponse is an event trigger in API responses.
type TriggerResponse struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	EventType          string    `json:"eventType"`
	AgentName          string    `json:"agentName,omitempty"`
	AgentAction        string    `json:"agentAction,omitempty"`
	Condition          string    `json:"condition,omitempty"`
	CooldownSeconds    int       `json:"cooldownSeconds"`
	MaxDailyExecutions int       `json:"maxDailyExecutions"`
	DelaySeconds       int       `json:"delaySeconds"`
	TenantID           *string   `json:"tenantId,omitempty"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toTriggerResponse(t *trigger.EventTrigger) TriggerResponse {
	return TriggerResponse{
		ID:                 t.ID,
		Code:               t.Code,
		Name:               t.Name,
		Description:        t.Description,
		EventType:          t.EventType,
		AgentName:          t.AgentName,
		AgentAction:        t.AgentAction,
		Condition:          t.ConditionJSON,
		CooldownSeconds:    t.CooldownSeconds,
		MaxDailyExecutions: t.MaxDailyExecutions,
		DelaySeconds:       t.DelaySeconds,
		TenantID:           t.TenantID,
		Active:             t.Active,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// TriggerExecutionResponse is one trigger firing in API responses.
type TriggerExecutionResponse struct {
	ID           string     `json:"id"`
	TriggerCode  string     `json:"triggerCode"`
	EntityType   string     `json:"entityType"`
	EntityID     string     `json:"entityId"`
	EventType    string     `json:"eventType"`
	Status       string     `json:"status"`
	Detail       string     `json:"detail,omitempty"`
	Error        string     `json:"error,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	ExecutedAt   time.Time  `json:"executedAt"`
}

func toTriggerExecutionResponse(e *trigger.TriggerExecution) TriggerExecutionResponse {
	return TriggerExecutionResponse{
		ID:           e.ID,
		TriggerCode:  e.TriggerCode,
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		EventType:    e.EventType,
		Status:       string(e.Status),
		Detail:       e.Detail,
		Error:        e.Error,
		ScheduledFor: e.ScheduledFor,
		ExecutedAt:   e.ExecutedAt,
	}
}

// EntityRequest identifies the scored entity in score requests.
type EntityRequest struct {
	TenantID   *string `json:"tenantId,omitempty"`
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
}

func (e *EntityRequest) ref() scoring.EntityRef {
	return scoring.EntityRef{TenantID: e.TenantID, EntityType: e.EntityType, EntityID: e.EntityID}
}

// PCIScoreRequest carries the raw counters for one Progress Certainty
// Index calculation.
type PCIScoreRequest struct {
	EntityRequest

	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	OverdueTasks   int `json:"overdueTasks"`
	AtRiskTasks    int `json:"atRiskTasks"`

	TaskVelocity  float64 `json:"taskVelocity"`
	VelocityTrend string  `json:"velocityTrend,omitempty"`

	EvidenceRejectionRate float64 `json:"evidenceRejectionRate"`

	SlaBreachCount      int     `json:"slaBreachCount"`
	SlaAdherencePercent float64 `json:"slaAdherencePercent"`
	AverageOverdueDays  float64 `json:"averageOverdueDays"`

	OrgMaturityLevel int `json:"orgMaturityLevel,omitempty"`

	TargetCompletionDate *time.Time `json:"targetCompletionDate,omitempty"`
}

func (r *PCIScoreRequest) toInputs() scoring.PCIInputs {
	return scoring.PCIInputs{
		TotalTasks:            r.TotalTasks,
		CompletedTasks:        r.CompletedTasks,
		OverdueTasks:          r.OverdueTasks,
		AtRiskTasks:           r.AtRiskTasks,
		TaskVelocity:          r.TaskVelocity,
		VelocityTrend:         scoring.VelocityTrend(r.VelocityTrend),
		EvidenceRejectionRate: r.EvidenceRejectionRate,
		SlaBreachCount:        r.SlaBreachCount,
		SlaAdherencePercent:   r.SlaAdherencePercent,
		AverageOverdueDays:    r.AverageOverdueDays,
		OrgMaturityLevel:      r.OrgMaturityLevel,
		TargetCompletionDate:  r.TargetCompletionDate,
	}
}

// EngagementScoreRequest carries the raw activity counters for one
// engagement analysis.
type EngagementScoreRequest struct {
	EntityRequest

	TotalActivities       int    `json:"totalActivities"`
	CurrentStreak         int    `json:"currentStreak"`
	LongestStreak         int    `json:"longestStreak"`
	TotalPoints           int    `json:"totalPoints"`
	DaysActive            int    `json:"daysActive"`
	DaysSinceLastActivity int    `json:"daysSinceLastActivity"`
	ActivitiesLast24h     int    `json:"activitiesLast24h"`
	ActivitiesLast7d      int    `json:"activitiesLast7d"`
	ActivitiesPrev7d      int    `json:"activitiesPrev7d"`
	CurrentState          string `json:"currentState,omitempty"`
}

func (r *EngagementScoreRequest) toInputs() scoring.EngagementInputs {
	return scoring.EngagementInputs{
		TotalActivities:       r.TotalActivities,
		CurrentStreak:         r.CurrentStreak,
		LongestStreak:         r.LongestStreak,
		TotalPoints:           r.TotalPoints,
		DaysActive:            r.DaysActive,
		DaysSinceLastActivity: r.DaysSinceLastActivity,
		ActivitiesLast24h:     r.ActivitiesLast24h,
		ActivitiesLast7d:      r.ActivitiesLast7d,
		ActivitiesPrev7d:      r.ActivitiesPrev7d,
		CurrentState:          scoring.EngagementState(r.CurrentState),
	}
}

// MotivationScoreRequest carries the five motivation factor values.
type MotivationScoreRequest struct {
	EntityRequest

	InteractionQuality     int `json:"interactionQuality"`
	ControlAlignment       int `json:"controlAlignment"`
	TaskImpact             int `json:"taskImpact"`
	ProgressVisibility     int `json:"progressVisibility"`
	AchievementRecognition int `json:"achievementRecognition"`
}

func (r *MotivationScoreRequest) toInputs() scoring.MotivationInputs {
	return scoring.MotivationInputs{
		InteractionQuality:     r.InteractionQuality,
		ControlAlignment:       r.ControlAlignment,
		TaskImpact:             r.TaskImpact,
		ProgressVisibility:     r.ProgressVisibility,
		AchievementRecognition: r.AchievementRecognition,
	}
}

// ConfidenceScoreRequest carries the seven evidence quality factors.
type ConfidenceScoreRequest struct {
	EntityRequest

	SourceCredibility  int    `json:"sourceCredibility"`
	Completeness       int    `json:"completeness"`
	Relevance          int    `json:"relevance"`
	Timeliness         int    `json:"timeliness"`
	CrossVerification  int    `json:"crossVerification"`
	FormatCompliance   int    `json:"formatCompliance"`
	AutomationCoverage int    `json:"automationCoverage"`
	CollectionMethod   string `json:"collectionMethod,omitempty"`
}

func (r *ConfidenceScoreRequest) toInputs() scoring.ConfidenceInputs {
	return scoring.ConfidenceInputs{
		SourceCredibility:  r.SourceCredibility,
		Completeness:       r.Completeness,
		Relevance:          r.Relevance,
		Timeliness:         r.Timeliness,
		CrossVerification:  r.CrossVerification,
		FormatCompliance:   r.FormatCompliance,
		AutomationCoverage: r.AutomationCoverage,
		CollectionMethod:   scoring.CollectionMethod(r.CollectionMethod),
	}
}

// ScoreResponse is a recorded score in API responses. Breakdown is the
// scorer's full result object.
type ScoreResponse struct {
	ID            string    `json:"id"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	ScoreType     string    `json:"scoreType"`
	Score         int       `json:"score"`
	Band          string    `json:"band"`
	Breakdown     any       `json:"breakdown,omitempty"`
	PreviousScore *int      `json:"previousScore,omitempty"`
	ScoreChange   *int      `json:"scoreChange,omitempty"`
	CalculatedAt  time.Time `json:"calculatedAt"`
}

// RecommendationResponse is a recommendation in API responses.
type RecommendationResponse struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	ActionType string     `json:"actionType"`
	Title      string     `json:"title"`
	Rationale  string     `json:"rationale,omitempty"`
	Confidence int        `json:"confidence"`
	Priority   int        `json:"priority"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ActedBy    string     `json:"actedBy,omitempty"`
	ActedAt    *time.Time `json:"actedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toRecommendationResponse(r *recommend.Recommendation) RecommendationResponse {
	return RecommendationResponse{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActionType: string(r.ActionType),
		Title:      r.Title,
		Rationale:  r.Rationale,
		Confidence: r.Confidence,
		Priority:   r.Priority,
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt,
		ActedBy:    r.ActedBy,
		ActedAt:    r.ActedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// RecommendationStatusRequest is the request body for acting on a
// recommendation.
type RecommendationStatusRequest struct {
	Status  string `json:"status"`
	ActedBy string `json:"actedBy,omitempty"`
}

// GenerateRecommendationsRequest carries workload counters that are
// merged with the entity's latest stored scores to produce a ranked
// recommendation list.
type GenerateRecommendationsRequest struct {
	EntityRequest

	OverdueTasks     int `json:"overdueTasks,omitempty"`
	PendingApprovals int `json:"pendingApprovals,omitempty"`
	EvidenceDueSoon  int `json:"evidenceDueSoon,omitempty"`
}
