package activities

// Activity inputs and results. All types cross the Temporal data converter,
// so fields are exported and JSON-tagged to keep payloads stable across
// worker versions.

// ContextInput requests context assembly for a job.
type ContextInput struct {
	JobID string    `json:"job_id"`
	Tier  string    `json:"tier"`
	Stats FileStats `json:"stats"`
}

// FileStats carries the source-survey measurements the IDE extension
// uploaded at job submission. Rates are in [0,1].
type FileStats struct {
	FileCount           int      `json:"file_count"`
	TotalTokens         int      `json:"total_tokens"`
	ParseRate           float64  `json:"parse_rate"`
	SymbolRate          float64  `json:"symbol_rate"`
	SnippetCompleteness float64  `json:"snippet_completeness"`
	TargetFiles         []string `json:"target_files"`
}

// ContextResult is the assembled execution context.
type ContextResult struct {
	JobID        string   `json:"job_id"`
	Tier         string   `json:"tier"`
	FileCount    int      `json:"file_count"`
	TotalTokens  int      `json:"total_tokens"`
	ASTScore     int      `json:"ast_score"`
	BaselineMode string   `json:"baseline_mode"`
	TargetFiles  []string `json:"target_files"`
}

// ProposalInput requests strategy proposals for a job.
type ProposalInput struct {
	JobID   string        `json:"job_id"`
	Context ContextResult `json:"context"`
	Tier    string        `json:"tier"`
}

// Proposal is one refactoring strategy candidate.
type Proposal struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NLConvertInput requests a natural-language to BDD/SDD conversion preview.
type NLConvertInput struct {
	JobID         string `json:"job_id"`
	InputText     string `json:"input_text"`
	Mode          string `json:"mode"`
	RevisionToken string `json:"revision_token"`
}

// NLConvertResult is a preview only; the core never persists it.
type NLConvertResult struct {
	BDDItems       []string `json:"bdd_items"`
	SDDItems       []string `json:"sdd_items"`
	ModelClassUsed string   `json:"model_class_used"`
}

// TestGenInput requests test scaffolding generation.
type TestGenInput struct {
	JobID string `json:"job_id"`
	Tier  string `json:"tier"`
}

// TestGenResult reports scaffolding generation. Persistence of the
// generated files is performed by the IDE extension.
type TestGenResult struct {
	JobID          string `json:"job_id"`
	TestsGenerated bool   `json:"tests_generated"`
}

// RunTestsInput identifies one test run by its natural key.
type RunTestsInput struct {
	JobID          string `json:"job_id"`
	RunType        string `json:"run_type"` // BASELINE or REPAIR
	AttemptNumber  int    `json:"attempt_number"`
	Phase          int    `json:"phase"`
	ExecutionMode  string `json:"execution_mode"`
	SpecRevisionID string `json:"spec_revision_id,omitempty"`
}

// RunTestsResult reports one test run. An empty fingerprint disables
// identical-failure accumulation for the attempt.
type RunTestsResult struct {
	Passed                    bool   `json:"passed"`
	TestRunID                 string `json:"test_run_id"`
	FailurePatternFingerprint string `json:"failure_pattern_fingerprint,omitempty"`
}

// PatchInput requests patch generation for one repair attempt.
type PatchInput struct {
	JobID         string `json:"job_id"`
	AttemptNumber int    `json:"attempt_number"`
	Phase         int    `json:"phase"`
	Tier          string `json:"tier"`
	IsDeepFix     bool   `json:"is_deep_fix"`
}

// PatchOperation is one patch-edit-schema operation. Line-number unified
// diffs are never produced or accepted.
type PatchOperation struct {
	Op             string `json:"op"`
	Path           string `json:"path,omitempty"`
	Symbol         string `json:"symbol,omitempty"`
	Search         string `json:"search,omitempty"`
	Replace        string `json:"replace,omitempty"`
	Content        string `json:"content,omitempty"`
	MaxOccurrences int    `json:"max_occurrences,omitempty"`
}

// PatchResult is the generated patch plus the model routing that produced
// it. EffectivePhase reflects tier gating and is what apply_patch records.
type PatchResult struct {
	JobID          string           `json:"job_id"`
	AttemptNumber  int              `json:"attempt_number"`
	ModelClass     string           `json:"model_class"`
	EffectivePhase int              `json:"effective_phase"`
	PatchOps       []PatchOperation `json:"patch_ops"`
}

// ApplyInput requests persistence of one applied patch attempt.
type ApplyInput struct {
	JobID          string `json:"job_id"`
	AttemptNumber  int    `json:"attempt_number"`
	EffectivePhase int    `json:"effective_phase"`
	Tier           string `json:"tier"`
}

// ApplyResult reports patch application bookkeeping.
type ApplyResult struct {
	JobID         string `json:"job_id"`
	AttemptNumber int    `json:"attempt_number"`
	Applied       bool   `json:"applied"`
}

// AuditInput is one audit event write.
type AuditInput struct {
	JobID     string         `json:"job_id"`
	EventType string         `json:"event_type"`
	OldState  string         `json:"old_state,omitempty"`
	NewState  string         `json:"new_state,omitempty"`
	Surface   string         `json:"surface,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UsageInput is one usage-ledger write or counter projection update.
type UsageInput struct {
	JobID          string         `json:"job_id"`
	EventType      string         `json:"event_type"`
	Quantity       int            `json:"quantity"`
	Billable       bool           `json:"billable"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EntitlementInput requests an entitlement snapshot for a job.
type EntitlementInput struct {
	JobID string `json:"job_id"`
}
