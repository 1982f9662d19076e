package thought

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/resilience"
)

// OpenAIBackend implements ReasoningBackend against the OpenAI chat
// completion API.
//
// Role-specific prompt shaping lives here, not in the engine: each
// AgentRole gets its own system prompt and temperature.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAIBackend creates a backend from environment configuration.
//
// The API key is read from OPENAI_API_KEY, falling back to the
// container secret file, and the model from OPENAI_MODEL (default
// gpt-4o-mini).
func NewOpenAIBackend(log *logging.Logger) (*OpenAIBackend, error) {
	if log == nil {
		log = logging.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			log.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		log.Info("read OpenAI API key from container secret")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		log.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	log.Info("initializing OpenAI reasoning backend", "model", model)
	return &OpenAIBackend{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}, nil
}

// rolePrompts maps each agent role to its system prompt.
var rolePrompts = map[AgentRole]string{
	RoleResearcher:  "You are a researcher. Propose distinct, evidence-oriented hypotheses that move the problem forward.",
	RoleCritic:      "You are a critic. Identify weaknesses, missing assumptions, and counterarguments in the problem as stated.",
	RoleSynthesizer: "You are a synthesizer. Combine the strongest available ideas into coherent next steps.",
	RoleAnalyzer:    "You are an analyzer. Decompose the problem into measurable parts and reason about each.",
	RoleCoordinator: "You are a coordinator. Propose steps that sequence and delegate the work effectively.",
	RoleSpecialist:  "You are a domain specialist. Bring deep domain detail to bear on the problem.",
}

// roleTemperature gives critics a cooler head than researchers.
func roleTemperature(role AgentRole) float32 {
	switch role {
	case RoleCritic, RoleAnalyzer:
		return 0.3
	case RoleResearcher, RoleSpecialist:
		return 0.9
	default:
		return 0.7
	}
}

// generationParams derives per-call tuning from the agent role and the
// active recovery flags.
func generationParams(role AgentRole, simplified bool) GenerationParams {
	temp := roleTemperature(role)
	maxTokens := 1024
	if simplified {
		// Reduced-complexity recovery mode: smaller, cheaper call.
		maxTokens = 256
	}
	return GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
}

// applyParams copies the non-nil tuning fields onto the request.
func applyParams(req *openai.ChatCompletionRequest, p GenerationParams) {
	if p.Temperature != nil {
		req.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		req.TopP = *p.TopP
	}
	if p.MaxTokens != nil {
		req.MaxCompletionTokens = *p.MaxTokens
	}
	if len(p.Stop) > 0 {
		req.Stop = p.Stop
	}
}

// thoughtPayload is the JSON shape the model is asked to emit.
type thoughtPayload struct {
	Thoughts []struct {
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
		Type       string  `json:"type"`
	} `json:"thoughts"`
}

// GenerateThoughts requests candidate reasoning steps for one agent.
func (b *OpenAIBackend) GenerateThoughts(ctx context.Context, prompt string, workCtx map[string]string, agent Agent) ([]*Thought, error) {
	system, ok := rolePrompts[agent.Role]
	if !ok {
		system = rolePrompts[RoleResearcher]
	}
	system += ` Respond with JSON: {"thoughts":[{"content":"...","confidence":0.0,"type":"hypothesis|critique|synthesis"}]}. Produce at most 3 thoughts.`

	user := prompt
	if len(workCtx) > 0 {
		var sb strings.Builder
		sb.WriteString(prompt)
		sb.WriteString("\n\nContext:\n")
		for k, v := range workCtx {
			sb.WriteString("- " + k + ": " + v + "\n")
		}
		user = sb.String()
	}

	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	applyParams(&req, generationParams(agent.Role, resilience.IsSimplified(ctx)))

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	return b.parseThoughts(resp.Choices[0].Message.Content, agent)
}

// parseThoughts decodes the model's JSON reply into thoughts. A reply
// that is not valid JSON is kept as a single hypothesis rather than
// discarded.
func (b *OpenAIBackend) parseThoughts(content string, agent Agent) ([]*Thought, error) {
	var payload thoughtPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil || len(payload.Thoughts) == 0 {
		text := strings.TrimSpace(content)
		if text == "" {
			return nil, fmt.Errorf("OpenAI returned empty content")
		}
		b.log.Debug("non-JSON reply, keeping as single thought", "agent_id", agent.ID)
		return []*Thought{{
			AgentID:    agent.ID,
			Content:    text,
			Confidence: 0.5,
			Type:       TypeHypothesis,
		}}, nil
	}

	var out []*Thought
	for _, pt := range payload.Thoughts {
		if strings.TrimSpace(pt.Content) == "" {
			continue
		}
		out = append(out, &Thought{
			AgentID:    agent.ID,
			Content:    pt.Content,
			Confidence: clamp01(pt.Confidence),
			Type:       parseThoughtType(pt.Type),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("OpenAI reply contained no usable thoughts")
	}
	return out, nil
}

// EvaluateThought asks the model for a single quality score in [0,1].
func (b *OpenAIBackend) EvaluateThought(ctx context.Context, th *Thought, workCtx map[string]string) (float64, error) {
	system := "You are an impartial judge. Score the given reasoning step for quality and usefulness. Respond with a single number between 0 and 1, nothing else."

	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: th.Content},
		},
		MaxCompletionTokens: 8,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("OpenAI evaluation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("OpenAI returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable evaluation score %q: %w", raw, err)
	}
	return clamp01(score), nil
}

// parseThoughtType maps a model-emitted tag to a ThoughtType.
func parseThoughtType(s string) ThoughtType {
	switch ThoughtType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeHypothesis, TypeCritique, TypeSynthesis, TypeExpansion:
		return ThoughtType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return TypeHypothesis
	}
}

var _ ReasoningBackend = (*OpenAIBackend)(nil)
