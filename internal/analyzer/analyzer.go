// Package analyzer implements the Analyzer: a bounded tool-calling
// agent over AWS Bedrock that recommends how a new file should be mapped
// onto the existing database.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"github.com/rowforge/ingest/internal/inferrer"
	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/store"
)

// Mode controls whether a Recommendation executes automatically.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeAutoHigh   Mode = "auto_high"
	ModeAutoAlways Mode = "auto_always"
)

// ConflictPolicy controls how column/type conflicts with an existing table
// are resolved.
type ConflictPolicy string

const (
	ConflictAskUser        ConflictPolicy = "ask_user"
	ConflictLLMDecide      ConflictPolicy = "llm_decide"
	ConflictPreferFlexible ConflictPolicy = "prefer_flexible"
)

// Strategy is the Recommendation's verdict on how to ingest the file.
type Strategy string

const (
	StrategyNewTable    Strategy = "NEW_TABLE"
	StrategyMergeExact  Strategy = "MERGE_EXACT"
	StrategyExtendTable Strategy = "EXTEND_TABLE"
	StrategyAdaptData   Strategy = "ADAPT_DATA"
)

// DefaultMaxIterations and HardCapIterations bound the agent loop.
const (
	DefaultMaxIterations = 5
	HardCapIterations    = 10
	AutoHighThreshold    = 0.9
)

// Recommendation is the agent's terminal output.
type Recommendation struct {
	Strategy          Strategy          `json:"strategy"`
	Confidence        float64           `json:"confidence"`
	TargetTable       string            `json:"target_table"`
	ColumnMapping     map[string]string `json:"column_mapping"`
	Conflicts         []string          `json:"conflicts"`
	DataQualityIssues []string          `json:"data_quality_issues"`
	Reasoning         string            `json:"reasoning"`
	IterationsUsed    int               `json:"iterations_used"`
}

// toolCall is one entry in the agent's transcript: a tool invocation plus
// its result, persisted via internal/store so interactive sessions survive
// a process restart.
type toolCall struct {
	Tool   string `json:"tool"`
	Input  any    `json:"input"`
	Output any    `json:"output"`
}

// Analyzer drives the bounded tool-calling loop against Bedrock.
type Analyzer struct {
	client  *bedrockruntime.Client
	modelID string
	db      *store.Store
}

// New constructs an Analyzer from the default AWS config chain.
func New(ctx context.Context, db *store.Store, modelID string) (*Analyzer, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("analyzer: load AWS config: %w", err)
	}

	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	return &Analyzer{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		db:      db,
	}, nil
}

// Request describes one analysis run.
type Request struct {
	ThreadID       uuid.UUID
	FileHeaders    []string
	Sample         []model.Row
	Fingerprint    [32]byte
	Mode           Mode
	ConflictPolicy ConflictPolicy
	MaxIterations  int
	ExistingTables []string
	GetSchema      func(table string) (model.TableSchema, bool, error)
}

// Analyze runs the agent loop: sample+infer, present tools, iterate until
// the agent emits a Recommendation or max_iterations is hit.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (Recommendation, error) {
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if maxIter > HardCapIterations {
		maxIter = HardCapIterations
	}

	if err := a.db.CreateThread(ctx, req.ThreadID, string(req.Mode)); err != nil {
		return Recommendation{}, fmt.Errorf("analyzer: create thread: %w", err)
	}

	inferred := inferrer.Infer("candidate", req.Sample)

	transcript := []toolCall{
		{Tool: "analyze_file_structure", Input: req.FileHeaders, Output: inferred},
		{Tool: "get_database_schema", Input: nil, Output: a.describeExistingSchemas(req)},
	}

	var rec Recommendation
	iterations := 0
	persisted := 0
	for iterations < maxIter {
		iterations++

		call, err := a.invokeBedrock(ctx, req, inferred, transcript)
		if err != nil {
			return Recommendation{}, fmt.Errorf("analyzer: bedrock call: %w", err)
		}

		for _, tc := range transcript[persisted:] {
			_ = a.db.AppendMessage(ctx, req.ThreadID, "tool", tc)
		}
		persisted = len(transcript)

		if call.done {
			rec = call.recommendation
			rec.IterationsUsed = iterations
			_ = a.db.AppendMessage(ctx, req.ThreadID, "assistant", rec)
			return rec, nil
		}

		transcript = append(transcript, call.next)
	}

	// Termination guarantee: exhausted without a decision, return
	// best effort with iterations_used == max_iterations.
	rec = bestEffortRecommendation(inferred, req.ExistingTables)
	rec.IterationsUsed = maxIter
	_ = a.db.AppendMessage(ctx, req.ThreadID, "assistant", rec)
	return rec, nil
}

// describeExistingSchemas resolves each existing table to its full column
// schema for the get_database_schema tool output, falling back to the bare
// name when the schema cannot be loaded.
func (a *Analyzer) describeExistingSchemas(req Request) []model.TableSchema {
	out := make([]model.TableSchema, 0, len(req.ExistingTables))
	for _, name := range req.ExistingTables {
		if req.GetSchema != nil {
			if schema, ok, err := req.GetSchema(name); err == nil && ok {
				out = append(out, schema)
				continue
			}
		}
		out = append(out, model.TableSchema{TableName: name})
	}
	return out
}

// GenerateSQL asks the same Bedrock model to translate a natural-language
// question into a single SELECT statement over the given table/column
// catalog, for the /generate-sql endpoint. The
// caller is responsible for running the result back through the Query
// Validator before execution -- this method only drives the model.
func (a *Analyzer) GenerateSQL(ctx context.Context, question string, tables map[string][]string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following request into a single read-only PostgreSQL SELECT statement.
Available tables and columns: %s
Request: %s
Respond with the SQL statement only, no explanation, no markdown fences.`, describeTables(tables), question)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: prompt}}},
		},
	})
	if err != nil {
		return "", err
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("analyzer: generate sql: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("analyzer: decode sql response: %w", err)
	}

	var sql string
	for _, c := range resp.Content {
		if c.Type == "text" {
			sql += c.Text
		}
	}
	return strings.TrimSpace(sql), nil
}

func describeTables(tables map[string][]string) string {
	var sb strings.Builder
	for table, columns := range tables {
		fmt.Fprintf(&sb, "%s(%s) ", table, strings.Join(columns, ", "))
	}
	return sb.String()
}

// ShouldAutoExecute applies the mode/confidence auto-execution policy.
func ShouldAutoExecute(mode Mode, confidence float64) bool {
	switch mode {
	case ModeAutoAlways:
		return true
	case ModeAutoHigh:
		return confidence >= AutoHighThreshold
	default:
		return false
	}
}

type agentStep struct {
	done           bool
	recommendation Recommendation
	next           toolCall
}

// invokeBedrock sends the accumulated transcript plus tool definitions to
// Bedrock and parses either a tool call or a terminal Recommendation out of
// the response.
func (a *Analyzer) invokeBedrock(ctx context.Context, req Request, schema model.TableSchema, transcript []toolCall) (agentStep, error) {
	systemPrompt := buildSystemPrompt(req)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: transcriptToPrompt(schema, transcript)}}},
		},
	})
	if err != nil {
		return agentStep{}, err
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return agentStep{}, err
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return agentStep{}, err
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(text), &rec); err == nil && rec.Strategy != "" {
		return agentStep{done: true, recommendation: rec}, nil
	}

	return agentStep{next: toolCall{Tool: "compare_with_tables", Input: req.ExistingTables, Output: text}}, nil
}

func transcriptToPrompt(schema model.TableSchema, transcript []toolCall) string {
	body, _ := json.Marshal(struct {
		InferredSchema model.TableSchema `json:"inferred_schema"`
		Transcript     []toolCall        `json:"transcript"`
	}{schema, transcript})
	return string(body)
}

func buildSystemPrompt(req Request) string {
	return fmt.Sprintf(`You decide how a newly uploaded file should be ingested into an existing relational schema.
Available tools: analyze_file_structure, get_database_schema, compare_with_tables, resolve_conflict.
Conflict policy: %s.
Respond with a single JSON object matching the Recommendation schema
{strategy, confidence, target_table, column_mapping, conflicts, data_quality_issues, reasoning}
once you have enough information; strategy must be one of NEW_TABLE, MERGE_EXACT, EXTEND_TABLE, ADAPT_DATA.`, req.ConflictPolicy)
}

// bestEffortRecommendation is returned when the iteration cap is exhausted
// without the agent reaching a decision.
func bestEffortRecommendation(schema model.TableSchema, existingTables []string) Recommendation {
	mapping := make(map[string]string, len(schema.Columns))
	for _, c := range schema.Columns {
		mapping[c.Name] = c.Name
	}
	return Recommendation{
		Strategy:      StrategyNewTable,
		Confidence:    0.5,
		TargetTable:   schema.TableName,
		ColumnMapping: mapping,
		Reasoning:     "iteration budget exhausted before the agent converged; defaulting to a new table as the least destructive option",
	}
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}
