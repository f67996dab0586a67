package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	estimateTimeout      = 15 * time.Second
	maxImageBytes        = 8 << 20
	maxImageRequestBytes = maxImageBytes/3*4 + 64<<10 // base64 plus JSON envelope
	maxUpstreamBytes     = 1 << 20
)

/* ─── Request / Response types ───────────────────────────────────────── */

// estimateTextRequest is the body for POST /api/meals/estimate. Either a
// free-form description or a name (with optional cuisine and portion) is required.
type estimateTextRequest struct {
	Description string `json:"description"`
	Name        string `json:"name"`
	Cuisine     string `json:"cuisine"`
	PortionSize string `json:"portion_size"`
}

// estimateImageRequest is the body for POST /api/meals/estimate-image.
type estimateImageRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// nutritionEstimate is a validated AI estimate. Nutrition values are whole
// numbers; the descriptive fields are optional.
type nutritionEstimate struct {
	DishName    string       `json:"dish_name,omitempty"`
	Cuisine     string       `json:"cuisine,omitempty"`
	MealType    MealCategory `json:"meal_type,omitempty"`
	PortionSize string       `json:"portion_size,omitempty"`
	Calories    int          `json:"calories"`
	Protein     int          `json:"protein"`
	Carbs       int          `json:"carbs"`
	Fat         int          `json:"fat"`
}

/* ─── Prompts ────────────────────────────────────────────────────────── */

const estimateSystemPrompt = `You are a nutrition expert. Always respond with a single raw JSON object, no markdown and no explanation.
If the input is not food at all (random characters, non-food objects), return {"error": "unrecognized"}.`

const estimateTextPromptTemplate = `Analyze this meal and estimate its nutrition.

%s

Return a JSON object in exactly this format:
{
  "dish_name": "main dish name, without unnecessary words",
  "cuisine": "cuisine if mentioned or inferable from ingredients, otherwise \"other\"",
  "meal_type": "breakfast, lunch, dinner or snack if mentioned, otherwise null",
  "nutrition": {"calories": number, "protein": number, "carbs": number, "fat": number}
}
Protein, carbs and fat are grams. All numbers are whole numbers for the whole portion.`

const estimateImagePrompt = `Analyze the meal in this photo and estimate its nutrition.

Return a JSON object in exactly this format:
{
  "dish_name": "specific name of the dish",
  "cuisine": "specific cuisine type",
  "portion_size": "estimated portion, e.g. \"1 cup\", \"250g\", \"1 serving\"",
  "nutrition": {"calories": number, "protein": number, "carbs": number, "fat": number}
}
Protein, carbs and fat are grams. All numbers are whole numbers for the portion shown.`

/* ─── OpenAI HTTP client ─────────────────────────────────────────────── */

// openAIMessage is a single chat message. Content is a string for text
// prompts or a list of parts for vision prompts.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format"`
}

// nutritionEstimator calls an OpenAI-compatible chat completions endpoint.
// Uses raw net/http to avoid pulling in an SDK for one endpoint.
type nutritionEstimator struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	client      *http.Client
	log         *zap.Logger
}

func newNutritionEstimator(cfg config, log *zap.Logger) *nutritionEstimator {
	return &nutritionEstimator{
		baseURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:      cfg.OpenAIAPIKey,
		model:       cfg.OpenAIModel,
		visionModel: cfg.OpenAIVisionModel,
		client:      &http.Client{Timeout: estimateTimeout},
		log:         log.With(zap.String("component", "estimator")),
	}
}

// callOpenAI sends a chat completions request and returns the content of
// the first choice.
func (e *nutritionEstimator) callOpenAI(ctx context.Context, model string, messages []openAIMessage) (string, error) {
	if e.apiKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY not set", errEstimate)
	}

	bodyBytes, err := json.Marshal(openAIRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: http request: %v", errEstimate, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", errEstimate, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai returned status %d: %s", errEstimate, resp.StatusCode, string(respBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", errEstimate, err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", errEstimate)
	}
	return result.Choices[0].Message.Content, nil
}

// EstimateText estimates nutrition for a described meal.
func (e *nutritionEstimator) EstimateText(ctx context.Context, req estimateTextRequest) (nutritionEstimate, error) {
	var subject string
	switch {
	case strings.TrimSpace(req.Description) != "":
		subject = "Description: " + strings.TrimSpace(req.Description)
	case strings.TrimSpace(req.Name) != "":
		subject = "Meal: " + strings.TrimSpace(req.Name)
		if req.Cuisine != "" {
			subject += "\nCuisine: " + req.Cuisine
		}
		if req.PortionSize != "" {
			subject += "\nPortion size: " + req.PortionSize
		}
	default:
		return nutritionEstimate{}, fmt.Errorf("%w: description or name is required", errInvalid)
	}

	content, err := e.callOpenAI(ctx, e.model, []openAIMessage{
		{Role: "system", Content: estimateSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(estimateTextPromptTemplate, subject)},
	})
	if err != nil {
		e.log.Error("text estimate", zap.Error(err))
		return nutritionEstimate{}, err
	}
	est, err := parseEstimate(content)
	if err != nil && !errors.Is(err, errUnrecognized) {
		e.log.Warn("unusable text estimate", zap.String("content", content), zap.Error(err))
	}
	return est, err
}

// EstimateImage estimates nutrition for a meal photo given as base64.
func (e *nutritionEstimator) EstimateImage(ctx context.Context, req estimateImageRequest) (nutritionEstimate, error) {
	data := strings.TrimSpace(req.ImageBase64)
	if data == "" {
		return nutritionEstimate{}, fmt.Errorf("%w: image_base64 is required", errInvalid)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nutritionEstimate{}, fmt.Errorf("%w: image_base64 is not valid base64", errInvalid)
	}
	if len(raw) > maxImageBytes {
		return nutritionEstimate{}, fmt.Errorf("%w: image exceeds %d bytes", errInvalid, maxImageBytes)
	}
	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	if mime == "" {
		mime = "image/jpeg"
	}
	if !strings.HasPrefix(mime, "image/") {
		return nutritionEstimate{}, fmt.Errorf("%w: mime_type must be an image type", errInvalid)
	}

	content, err := e.callOpenAI(ctx, e.visionModel, []openAIMessage{
		{Role: "system", Content: estimateSystemPrompt},
		{Role: "user", Content: []openAIContentPart{
			{Type: "text", Text: estimateImagePrompt},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: "data:" + mime + ";base64," + data}},
		}},
	})
	if err != nil {
		e.log.Error("image estimate", zap.Error(err))
		return nutritionEstimate{}, err
	}
	est, err := parseEstimate(content)
	if err != nil && !errors.Is(err, errUnrecognized) {
		e.log.Warn("unusable image estimate", zap.Error(err))
	}
	return est, err
}

// parseEstimate validates an AI payload. Missing or negative nutrition
// numbers are an error, never zero.
func parseEstimate(content string) (nutritionEstimate, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload struct {
		Error       string  `json:"error"`
		DishName    string  `json:"dish_name"`
		Cuisine     string  `json:"cuisine"`
		MealType    *string `json:"meal_type"`
		PortionSize string  `json:"portion_size"`
		Nutrition   *struct {
			Calories *float64 `json:"calories"`
			Protein  *float64 `json:"protein"`
			Carbs    *float64 `json:"carbs"`
			Fat      *float64 `json:"fat"`
		} `json:"nutrition"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nutritionEstimate{}, fmt.Errorf("%w: payload is not valid JSON", errEstimate)
	}
	if payload.Error == "unrecognized" {
		return nutritionEstimate{}, errUnrecognized
	}
	n := payload.Nutrition
	if n == nil || n.Calories == nil || n.Protein == nil || n.Carbs == nil || n.Fat == nil {
		return nutritionEstimate{}, fmt.Errorf("%w: nutrition fields missing", errEstimate)
	}
	if *n.Calories < 0 || *n.Protein < 0 || *n.Carbs < 0 || *n.Fat < 0 {
		return nutritionEstimate{}, fmt.Errorf("%w: nutrition values must not be negative", errEstimate)
	}

	est := nutritionEstimate{
		DishName:    strings.TrimSpace(payload.DishName),
		Cuisine:     strings.ToLower(strings.TrimSpace(payload.Cuisine)),
		PortionSize: strings.TrimSpace(payload.PortionSize),
		Calories:    roundHalfUp(*n.Calories),
		Protein:     roundHalfUp(*n.Protein),
		Carbs:       roundHalfUp(*n.Carbs),
		Fat:         roundHalfUp(*n.Fat),
	}
	if payload.MealType != nil {
		if mt := MealCategory(strings.ToLower(strings.TrimSpace(*payload.MealType))); validCategories[mt] {
			est.MealType = mt
		}
	}
	return est, nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// estimateMeal handles POST /api/meals/estimate.
// An input the model does not recognize as food returns 200 {"error":"unrecognized"}.
func (h *Handler) estimateMeal(c *gin.Context) {
	var req estimateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	est, err := h.estimator.EstimateText(c.Request.Context(), req)
	h.writeEstimate(c, est, err)
}

// estimateMealImage handles POST /api/meals/estimate-image.
func (h *Handler) estimateMealImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageRequestBytes)
	var req estimateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", maxImageBytes))
			return
		}
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	est, err := h.estimator.EstimateImage(c.Request.Context(), req)
	h.writeEstimate(c, est, err)
}

func (h *Handler) writeEstimate(c *gin.Context, est nutritionEstimate, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, est)
	case errors.Is(err, errUnrecognized):
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
	case errors.Is(err, errInvalid):
		apiError(c, http.StatusBadRequest, err.Error())
	default:
		apiError(c, http.StatusBadGateway, "estimation failed")
	}
}
