package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayush6624/go-chatgpt"
	chatgpt_errors "github.com/ayush6624/go-chatgpt/utils"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/retry"
)

// completer is the slice of the go-chatgpt client the grader uses.
type completer interface {
	Send(ctx context.Context, req *chatgpt.ChatCompletionRequest) (*chatgpt.ChatResponse, error)
}

// ChatGPT grades trades with an OpenAI chat model. Status and danger are
// still decided by policy; the model only supplies the score, reasoning
// and breakdown.
type ChatGPT struct {
	client completer
	model  chatgpt.ChatGPTModel
	retry  *retry.Policy
}

// NewChatGPT constructs a grader backed by the OpenAI API.
func NewChatGPT(apiKey, modelName string, attempts int, backoff time.Duration) (*ChatGPT, error) {
	client, err := chatgpt.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to construct gpt client: %w", err)
	}
	return newChatGPT(client, modelName, attempts, backoff), nil
}

func newChatGPT(client completer, modelName string, attempts int, backoff time.Duration) *ChatGPT {
	m := chatgpt.GPT35Turbo
	if modelName != "" {
		m = chatgpt.ChatGPTModel(modelName)
	}
	return &ChatGPT{
		client: client,
		model:  m,
		retry:  retry.NewPolicy(attempts, backoff),
	}
}

const systemPrompt = `
You grade proposed sports trades for a general-manager simulator. You receive
a JSON document describing the sport, the home team, every asset that moves
with its computed value, and each team's sent/received totals.

Grade the trade from the home team's perspective and reply with ONLY a JSON
object of this shape:

{
  "score": <integer 0-100, 50 is an even trade>,
  "reasoning": "<two or three sentences>",
  "breakdown": {
    "talent_balance": <integer 0-100>,
    "contract_value": <integer 0-100>,
    "team_fit": <integer 0-100>,
    "future_assets": <integer 0-100>
  }
}
`

type chatReply struct {
	Score     *int   `json:"score"`
	Reasoning string `json:"reasoning"`
	Breakdown struct {
		TalentBalance int `json:"talent_balance"`
		ContractValue int `json:"contract_value"`
		TeamFit       int `json:"team_fit"`
		FutureAssets  int `json:"future_assets"`
	} `json:"breakdown"`
}

// Grade asks the model for a grade, retrying transient failures until the
// attempts run out or ctx is done.
func (g *ChatGPT) Grade(ctx context.Context, req Request) (Result, error) {
	if req.Verdict.Empty {
		return Result{
			Score:     50,
			Reasoning: EmptyTradeReasoning,
			Breakdown: model.GradeBreakdown{TalentBalance: 50, ContractValue: 50, TeamFit: 50, FutureAssets: 50},
		}, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode grading request: %w", err)
	}

	var result Result
	err = g.retry.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.client.Send(ctx, &chatgpt.ChatCompletionRequest{
			Model: g.model,
			Messages: []chatgpt.ChatMessage{
				{Role: chatgpt.ChatGPTModelRoleSystem, Content: systemPrompt},
				{Role: chatgpt.ChatGPTModelRoleUser, Content: string(payload)},
			},
		})
		if err != nil {
			if isRequestError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return errors.New("empty completion")
		}
		result, err = parseReply(resp.Choices[0].Message.Content)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, nil
}

// isRequestError reports client-side validation failures, which fail the
// same way on every attempt.
func isRequestError(err error) bool {
	for _, target := range []error{
		chatgpt_errors.ErrAPIKeyRequired,
		chatgpt_errors.ErrInvalidModel,
		chatgpt_errors.ErrNoMessages,
		chatgpt_errors.ErrInvalidRole,
		chatgpt_errors.ErrInvalidTemperature,
		chatgpt_errors.ErrInvalidPresencePenalty,
		chatgpt_errors.ErrInvalidFrequencyPenalty,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseReply extracts the JSON object from a model reply, tolerating code
// fences around it.
func parseReply(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("reply has no JSON object: %q", truncate(content, 80))
	}

	var r chatReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	if r.Score == nil {
		return Result{}, errors.New("reply is missing score")
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		return Result{}, errors.New("reply is missing reasoning")
	}

	return Result{
		Score:     clampScore(*r.Score),
		Reasoning: strings.TrimSpace(r.Reasoning),
		Breakdown: model.GradeBreakdown{
			TalentBalance: clampScore(r.Breakdown.TalentBalance),
			ContractValue: clampScore(r.Breakdown.ContractValue),
			TeamFit:       clampScore(r.Breakdown.TeamFit),
			FutureAssets:  clampScore(r.Breakdown.FutureAssets),
		},
	}, nil
}

func clampScore(n int) int {
	return max(0, min(100, n))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
