package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// BedrockConfig configures a BedrockProvider. Credentials default to
// the standard AWS SDK chain (environment, shared config, IAM role)
// when AccessKeyID/SecretAccessKey are left empty.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// BedrockProvider implements Provider against AWS Bedrock's Converse
// streaming API, giving the gateway a route to Claude, Titan, and Llama
// models behind AWS IAM rather than a direct vendor API key.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewBedrockProvider resolves AWS credentials and builds the Bedrock
// runtime client.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers: loading AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) SupportsTools() bool { return true }

func (p *BedrockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextWindow: 8192, SupportsVision: false},
		{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express", ContextWindow: 8192, SupportsVision: false},
	}
}

func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("providers: bedrock client not initialized")
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages, err := convertMessagesToBedrock(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("providers: converting messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertToolsToBedrock(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("providers: converting tools: %w", err)
		}
		converseReq.ToolConfig = toolConfig
	}

	var stream *bedrockruntime.ConverseStreamOutput
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		stream, err = p.client.ConverseStream(ctx, converseReq)
		if err == nil {
			break
		}
		if !isRetryableBedrockError(err) || attempt == p.maxRetries {
			return nil, fmt.Errorf("providers: bedrock converse stream: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelay * time.Duration(attempt+1)):
		}
	}

	out := make(chan CompletionChunk)
	go p.processStream(ctx, stream, out)
	return out, nil
}

func (p *BedrockProvider) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- CompletionChunk) {
	defer close(out)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var currentTool *models.ToolCall
	var toolInput strings.Builder

	events := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			out <- CompletionChunk{Err: ctx.Err(), Done: true}
			return
		case event, ok := <-events:
			if !ok {
				if currentTool != nil && currentTool.ID != "" {
					currentTool.Args = json.RawMessage(toolInput.String())
					out <- CompletionChunk{ToolCall: currentTool}
				}
				if err := eventStream.Err(); err != nil {
					out <- CompletionChunk{Err: fmt.Errorf("providers: bedrock stream: %w", err), Done: true}
				} else {
					out <- CompletionChunk{Done: true}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentTool = &models.ToolCall{ID: aws.ToString(toolUse.Value.ToolUseId), Name: aws.ToString(toolUse.Value.Name)}
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- CompletionChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentTool != nil && currentTool.ID != "" {
					currentTool.Args = json.RawMessage(toolInput.String())
					out <- CompletionChunk{ToolCall: currentTool}
					currentTool = nil
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				out <- CompletionChunk{Done: true}
				return
			}
		}
	}
}

func convertMessagesToBedrock(messages []models.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		if m.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}
		if m.Role == models.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			var input any
			if len(tc.Args) > 0 {
				if err := json.Unmarshal(tc.Args, &input); err != nil {
					return nil, fmt.Errorf("tool call %q args: %w", tc.ID, err)
				}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: document.NewLazyDocument(input)},
			})
		}

		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		if len(content) > 0 {
			out = append(out, types.Message{Role: role, Content: content})
		}
	}
	return out, nil
}

func convertToolsToBedrock(defs []models.ToolDefinition) (*types.ToolConfiguration, error) {
	tools := make([]types.Tool, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", d.Name, err)
			}
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}, nil
}

func isRetryableBedrockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"throttlingexception", "toomanyrequestsexception", "serviceunavailableexception", "429", "500", "502", "503", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
