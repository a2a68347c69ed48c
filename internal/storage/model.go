package storage

import "time"

// PermissionMode controls how permissive tool/policy evaluation is for an agent.
type PermissionMode string

const (
	PermissionPermissive  PermissionMode = "Permissive"
	PermissionStandard    PermissionMode = "Standard"
	PermissionRestrictive PermissionMode = "Restrictive"
)

// QuotaPeriod is the budget reset cadence for an agent's token budget.
type QuotaPeriod string

const (
	QuotaDaily    QuotaPeriod = "Daily"
	QuotaMonthly  QuotaPeriod = "Monthly"
	QuotaYearly   QuotaPeriod = "Yearly"
	QuotaLifetime QuotaPeriod = "Lifetime"
)

// AgentState is the per-agent governance and budget record.
type AgentState struct {
	AgentID        string
	PermissionMode PermissionMode
	TokenBudget    int
	QuotaPeriod    QuotaPeriod
	TokensConsumed int
	BudgetResetAt  *time.Time
}

// SessionState is the per-session token-capacity record.
type SessionState struct {
	SessionID      string
	ConversationID string
	TokenCapacity  int
	TokensUsed     int
}

// ParticipantRole identifies who authored a turn.
type ParticipantRole string

const (
	SystemRole    ParticipantRole = "SystemRole"
	UserRole      ParticipantRole = "UserRole"
	AssistantRole ParticipantRole = "AssistantRole"
	ToolRole      ParticipantRole = "ToolRole"
)

// ContentBlockType tags the variant of a ContentBlock.
type ContentBlockType string

const (
	TextBlockType       ContentBlockType = "text"
	ToolUseBlockType     ContentBlockType = "tool_use"
	ToolResultBlockType ContentBlockType = "tool_result"
	ImageBlockType      ContentBlockType = "image"
)

// ContentBlock is a tagged union over the four content block variants.
// Exactly the fields relevant to Type are populated.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// TextBlock
	Text string `json:"text,omitempty"`

	// ToolUseBlock
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	InputJSON  string `json:"inputJson,omitempty"`

	// ToolResultBlock (ToolCallID/ToolName shared with ToolUseBlock)
	OutputJSON string `json:"outputJson,omitempty"`
	IsError    bool   `json:"isError,omitempty"`

	// ImageBlock
	MediaType string `json:"mediaType,omitempty"`
	Source    string `json:"source,omitempty"`
	AltText   string `json:"altText,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: TextBlockType, Text: text}
}

func ToolUseBlock(callID, name, inputJSON string) ContentBlock {
	return ContentBlock{Type: ToolUseBlockType, ToolCallID: callID, ToolName: name, InputJSON: inputJSON}
}

func ToolResultBlock(callID, name, outputJSON string, isError bool) ContentBlock {
	return ContentBlock{Type: ToolResultBlockType, ToolCallID: callID, ToolName: name, OutputJSON: outputJSON, IsError: isError}
}

func ImageBlock(mediaType, source, altText string) ContentBlock {
	return ContentBlock{Type: ImageBlockType, MediaType: mediaType, Source: source, AltText: altText}
}

// Message is the content of a single turn.
type Message struct {
	MessageID     string          `json:"messageId"`
	Role          ParticipantRole `json:"role"`
	Content       string          `json:"content"`
	ContentBlocks []ContentBlock  `json:"contentBlocks"`
}

// TurnRecord is one append-only row in the turns table.
type TurnRecord struct {
	TurnID             string
	SessionID          string
	ConversationID     string
	TurnIndex          int
	ParticipantRole    ParticipantRole
	ParticipantAgentID string
	Message            Message
	ModelFinishReason  string
	ModelUsageJSON     string
	CreatedAt          time.Time
}

// Decision is a governance verdict.
type Decision string

const (
	Allow           Decision = "Allow"
	Deny            Decision = "Deny"
	RequireApproval Decision = "RequireApproval"
)

// AuditEntry is a durable record of a governance decision.
type AuditEntry struct {
	AuditEntryID string
	AgentID      string
	SessionID    string // empty = null
	Decision     Decision
	Reason       string
	CreatedAt    time.Time
}

// ChannelType identifies the external transport a channel was created for.
type ChannelType string

const (
	ChannelCLI  ChannelType = "CLI"
	ChannelHTTP ChannelType = "HTTP"
)

// ChannelRecord binds an external caller identity to an active session pair.
type ChannelRecord struct {
	ChannelID            string
	ChannelType          ChannelType
	AgentID              string
	ActiveSessionID      string
	ActiveConversationID string
	CreatedAt            time.Time
}

// TriggerKind identifies how a schedule fires.
type TriggerKind string

const (
	CronTrigger     TriggerKind = "CronTrigger"
	IntervalTrigger TriggerKind = "IntervalTrigger"
	EventTrigger    TriggerKind = "EventTrigger"
)

// ScheduleStatus is the lifecycle state of a schedule.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "Active"
	SchedulePaused   ScheduleStatus = "Paused"
	ScheduleExpired  ScheduleStatus = "Expired"
	ScheduleDisabled ScheduleStatus = "Disabled"
)

// ConcurrencyPolicy governs overlap of in-flight executions for a schedule.
type ConcurrencyPolicy string

const (
	ConcurrencyAllow   ConcurrencyPolicy = "Allow"
	ConcurrencyForbid  ConcurrencyPolicy = "Forbid"
	ConcurrencyReplace ConcurrencyPolicy = "Replace"
)

// RecurrencePattern describes how a schedule recurs.
type RecurrencePattern struct {
	Label          string
	CronExpression string // non-empty iff Trigger == CronTrigger
	IntervalSec    int    // non-zero iff Trigger == IntervalTrigger
}

// ScheduleRecord is a recurring-action definition.
type ScheduleRecord struct {
	ScheduleID          string
	OwnerAgentID        string
	Recurrence          RecurrencePattern
	Trigger             TriggerKind
	ActionRef           string
	Status              ScheduleStatus
	ConcurrencyPolicy   ConcurrencyPolicy
	AllowsCatchUp       bool
	AutoDisableAfterRun bool
	CatchUpWindowSec    int
	MaxCatchUpRunsPerTick int
	LastExecutionAt     *time.Time
	NextExecutionAt     *time.Time
}

// TriggerSource identifies what caused a ScheduledExecutionRecord.
type TriggerSource string

const (
	CronTick     TriggerSource = "CronTick"
	IntervalTick TriggerSource = "IntervalTick"
	EventSource  TriggerSource = "Event"
	ManualTick   TriggerSource = "Manual"
)

// ExecutionOutcome is the terminal state of a scheduled execution.
type ExecutionOutcome string

const (
	Succeeded ExecutionOutcome = "Succeeded"
	Failed    ExecutionOutcome = "Failed"
	Skipped   ExecutionOutcome = "Skipped"
)

// SkipReason explains why an execution was skipped. Empty unless Outcome == Skipped.
type SkipReason string

const (
	SkipConcurrencyForbid       SkipReason = "ConcurrencyForbid"
	SkipConcurrencyReplace      SkipReason = "ConcurrencyReplace"
	SkipManualTriggerInactive   SkipReason = "ManualTriggerInactive"
)

// ScheduledExecutionRecord is one materialized run of a schedule.
type ScheduledExecutionRecord struct {
	ExecutionID   string
	ScheduleID    string
	DueAt         time.Time
	TriggerSource TriggerSource
	Outcome       ExecutionOutcome
	StartedAt     time.Time
	EndedAt       *time.Time
	SkipReason    SkipReason
}

// DueScheduleRecord pairs a schedule with one materialized due window.
type DueScheduleRecord struct {
	Schedule ScheduleRecord
	DueAt    time.Time
}

// MemoryTier distinguishes durable facts from episodic recollections.
type MemoryTier string

const (
	SemanticMemory MemoryTier = "SemanticMemory"
	EpisodicMemory MemoryTier = "EpisodicMemory"
)

// MemoryScope bounds the visibility of a memory item.
type MemoryScope string

const (
	SessionScope MemoryScope = "SessionScope"
	ProjectScope MemoryScope = "ProjectScope"
	GlobalScope  MemoryScope = "GlobalScope"
)

// MemorySource identifies who produced a memory item.
type MemorySource string

const (
	UserSource   MemorySource = "UserSource"
	SystemSource MemorySource = "SystemSource"
	AgentSource  MemorySource = "AgentSource"
)

// Sensitivity classifies how a memory item should be handled.
type Sensitivity string

const (
	Public       Sensitivity = "Public"
	Internal     Sensitivity = "Internal"
	Confidential Sensitivity = "Confidential"
	Restricted   Sensitivity = "Restricted"
)

// MemoryItem is one row in the memory store.
type MemoryItem struct {
	MemoryItemID    string
	AgentID         string
	Tier            MemoryTier
	Scope           MemoryScope
	Source          MemorySource
	Content         string
	MetadataJSON    string
	GeneratedByTurn string
	SessionID       string
	Sensitivity     Sensitivity
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MemorySearchResult is the page returned by MemoryPort.Search.
type MemorySearchResult struct {
	Items      []MemoryItem
	Cursor     string
	TotalCount int
}

// MemorySort selects the pagination order for MemoryPort.Search.
type MemorySort string

const (
	CreatedDesc MemorySort = "CreatedDesc"
	CreatedAsc  MemorySort = "CreatedAsc"
)

// MemoryQuery parameterizes MemoryPort.Search.
type MemoryQuery struct {
	Substring string
	Sort      MemorySort
	Limit     int
	Cursor    string
}

// JournalStatus is the outcome recorded for a journalled activity.
type JournalStatus string

const (
	JournalComplete JournalStatus = "Complete"
	JournalFailed   JournalStatus = "Failed"
)

// JournalEntry is one immutable row of the workflow journal.
type JournalEntry struct {
	ExecutionID      string
	ActivityName     string
	IdempotencyKey   string
	Status           JournalStatus
	SerializedResult string
	SerializedError  string
	Timestamp        time.Time
}
