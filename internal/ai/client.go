package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/models"
)

// PromptContext carries the resolved conversation context merged into the
// prompt template.
type PromptContext struct {
	Settings *models.GroupSettings
	Memory   models.MemoryBundle
	Role     models.Role
	UserID   int64
	Username string
}

// Client is the intent extraction client. The secondary provider may be
// nil when only one backend is configured.
type Client struct {
	primary     Provider
	secondary   Provider
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func NewClient(primary, secondary Provider, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if err := ValidateTemplates(); err != nil {
		return nil, err
	}
	return &Client{
		primary:     primary,
		secondary:   secondary,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// rawResponse is the JSON shape expected from every provider.
type rawResponse struct {
	Intent     string                     `json:"intent"`
	Entities   map[string]json.RawMessage `json:"entities"`
	Confidence float64                    `json:"confidence"`
	Reply      string                     `json:"reply"`
}

// ParseMessage turns a message into a typed Intent. It never returns an
// error: provider failures cascade primary -> secondary -> keyword rules,
// and malformed create_transaction entities downgrade to a clarification.
func (c *Client) ParseMessage(ctx context.Context, text string, pctx PromptContext) *models.Intent {
	req, err := c.buildRequest(text, pctx)
	if err != nil {
		// Template misconfiguration is caught at startup; reaching this
		// means an unknown scenario name, which is a programming error.
		c.logger.Error("Failed to build prompt", zap.Error(err))
		return fallbackIntent(text)
	}

	resp, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Warn("All AI providers failed, using keyword fallback",
			zap.Error(err),
			zap.Int64("user_id", pctx.UserID))
		return fallbackIntent(text)
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		c.logger.Warn("Failed to parse AI response JSON, using keyword fallback",
			zap.Error(err),
			zap.String("response", resp.Content))
		return fallbackIntent(text)
	}

	intent := c.parseRaw(&raw, pctx)
	intent.TokensUsed = resp.TokensUsed
	intent.Model = resp.Model
	return intent
}

// complete calls the primary provider, then retries once against the
// secondary with the same prompt.
func (c *Client) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, primaryErr := c.primary.Complete(callCtx, req)
	if primaryErr == nil {
		return resp, nil
	}

	if c.secondary == nil {
		return nil, fmt.Errorf("provider %s failed: %w", c.primary.Name(), primaryErr)
	}

	c.logger.Warn("Primary provider failed, trying secondary",
		zap.Error(primaryErr),
		zap.String("primary", c.primary.Name()),
		zap.String("secondary", c.secondary.Name()))

	retryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, secondaryErr := c.secondary.Complete(retryCtx, req)
	if secondaryErr == nil {
		return resp, nil
	}
	return nil, fmt.Errorf("all providers failed: %s: %v; %s: %v",
		c.primary.Name(), primaryErr, c.secondary.Name(), secondaryErr)
}

func (c *Client) buildRequest(text string, pctx PromptContext) (CompletionRequest, error) {
	currency := "IDR"
	dailyLimit, monthlyLimit := "", ""
	if pctx.Settings != nil {
		currency = pctx.Settings.Currency
		dailyLimit = strconv.FormatFloat(pctx.Settings.DailyLimit, 'f', -1, 64)
		monthlyLimit = strconv.FormatFloat(pctx.Settings.MonthlyLimit, 'f', -1, 64)
	}

	user, err := renderPrompt(ScenarioMessageAnalysis, map[string]string{
		"message":        text,
		"currency":       currency,
		"daily_limit":    dailyLimit,
		"monthly_limit":  monthlyLimit,
		"role":           string(pctx.Role),
		"memory_summary": pctx.Memory.Summary,
		"context_hash":   pctx.Memory.ContextHash,
	})
	if err != nil {
		return CompletionRequest{}, err
	}

	return CompletionRequest{
		System:      systemPrompt,
		User:        user,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}, nil
}

// parseRaw maps the provider's JSON into the closed Intent variant set.
func (c *Client) parseRaw(raw *rawResponse, pctx PromptContext) *models.Intent {
	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if raw.Intent == "" {
		reply := raw.Reply
		if reply == "" {
			reply = "Maaf, saya tidak mengerti maksud Anda."
		}
		return &models.Intent{Kind: models.IntentUnknown, Reply: reply, Confidence: confidence}
	}

	if raw.Intent == string(models.IntentCreateTransaction) {
		return c.parseCreateTransaction(raw, confidence, pctx)
	}

	kind := models.IntentKind(raw.Intent)
	switch kind {
	case models.IntentBalanceInquiry, models.IntentHistoryInquiry,
		models.IntentCancelLast, models.IntentChat, models.IntentHelp:
		// recognized pass-through intents
	default:
		kind = models.IntentUnknown
	}
	return &models.Intent{
		Kind:       kind,
		Reply:      raw.Reply,
		Confidence: confidence,
		Entities:   raw.Entities,
	}
}

// txnEntities is the expected entity shape for create_transaction.
type txnEntities struct {
	Amount         *float64 `json:"amount"`
	Currency       string   `json:"currency"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	TargetCurrency string   `json:"target_currency"`
	TargetAmount   *float64 `json:"target_amount"`
	ExchangeRate   *float64 `json:"exchange_rate"`
}

func (c *Client) parseCreateTransaction(raw *rawResponse, confidence float64, pctx PromptContext) *models.Intent {
	entitiesJSON, _ := json.Marshal(raw.Entities)
	var entities txnEntities
	if err := json.Unmarshal(entitiesJSON, &entities); err != nil {
		return clarification(fmt.Sprintf("detail transaksi tidak terbaca (%v)", err), raw)
	}

	draft := &models.TransactionDraft{
		UserID:         pctx.UserID,
		Username:       pctx.Username,
		Type:           models.TransactionType(entities.Type),
		Currency:       strings.ToUpper(entities.Currency),
		Description:    entities.Description,
		Category:       entities.Category,
		TargetCurrency: strings.ToUpper(entities.TargetCurrency),
	}
	if entities.Amount != nil {
		draft.Amount = decimal.NewFromFloat(*entities.Amount)
	}
	if entities.TargetAmount != nil {
		draft.TargetAmount = decimal.NewFromFloat(*entities.TargetAmount)
	}
	if entities.ExchangeRate != nil {
		draft.ExchangeRate = decimal.NewFromFloat(*entities.ExchangeRate)
	}
	if draft.Currency == "" && pctx.Settings != nil {
		draft.Currency = pctx.Settings.Currency
	}

	if err := models.ValidateDraft(draft); err != nil {
		c.logger.Warn("AI returned incomplete transaction data",
			zap.Error(err),
			zap.Int64("user_id", pctx.UserID))
		return clarification(err.Error(), raw)
	}

	return &models.Intent{
		Kind:       models.IntentCreateTransaction,
		Reply:      raw.Reply,
		Confidence: confidence,
		Draft:      draft,
		Entities:   raw.Entities,
	}
}

func clarification(reason string, raw *rawResponse) *models.Intent {
	return &models.Intent{
		Kind:     models.IntentClarificationNeeded,
		Reply:    fmt.Sprintf("Sepertinya ada informasi yang kurang untuk transaksi: %s. Bisa tolong perjelas?", reason),
		Entities: raw.Entities,
	}
}
