package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOpenAI records the last request and replies with whatever setMock
// configured last.
type mockOpenAI struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     any
	lastAuth string
	lastReq  openAIRequest
}

func (m *mockOpenAI) setMock(status int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status, m.body = status, body
}

func (m *mockOpenAI) last() (auth string, req openAIRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth, m.lastReq
}

// setupEstimateTest creates a Gin engine wired to a mock OpenAI server. No
// DB is needed for estimation.
func setupEstimateTest(t *testing.T) (*gin.Engine, *mockOpenAI) {
	t.Helper()
	mock := &mockOpenAI{status: http.StatusOK}
	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		mock.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&mock.lastReq)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(mock.status)
		_ = json.NewEncoder(w).Encode(mock.body)
	}))
	t.Cleanup(mock.Close)

	gin.SetMode(gin.TestMode)
	h := &Handler{estimator: newNutritionEstimator(config{
		OpenAIAPIKey:      "test-key",
		OpenAIBaseURL:     mock.URL + "/",
		OpenAIModel:       "text-model",
		OpenAIVisionModel: "vision-model",
	}, zap.NewNop())}
	router := gin.New()
	router.POST("/api/meals/estimate", h.estimateMeal)
	router.POST("/api/meals/estimate-image", h.estimateMealImage)
	return router, mock
}

func doEstimateRequest(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// openAIChatResponse wraps content in the chat completions response shape.
func openAIChatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestEstimate_TextSuccess(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(
		`{"dish_name":"Pad Thai","cuisine":"Thai","meal_type":"Dinner","nutrition":{"calories":612.4,"protein":24.5,"carbs":80,"fat":21}}`))

	w := doEstimateRequest(router, "/api/meals/estimate", `{"description":"a plate of pad thai with shrimp"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp nutritionEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	want := nutritionEstimate{DishName: "Pad Thai", Cuisine: "thai", MealType: CategoryDinner, Calories: 612, Protein: 25, Carbs: 80, Fat: 21}
	assert.Equal(t, want, resp)

	auth, sent := mock.last()
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "text-model", sent.Model)
}

func TestEstimate_NameWithPortion(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(
		`{"dish_name":"Ramen","cuisine":"japanese","meal_type":null,"nutrition":{"calories":550,"protein":20,"carbs":70,"fat":18}}`))

	w := doEstimateRequest(router, "/api/meals/estimate", `{"name":"Ramen","cuisine":"japanese","portion_size":"1 bowl"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp nutritionEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.MealType)

	_, sent := mock.last()
	require.Len(t, sent.Messages, 2)
	prompt, _ := sent.Messages[1].Content.(string)
	assert.Contains(t, prompt, "Portion size: 1 bowl")
}

func TestEstimate_Unrecognized(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(`{"error":"unrecognized"}`))

	w := doEstimateRequest(router, "/api/meals/estimate", `{"description":"asdfghjkl"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"error":"unrecognized"}`, w.Body.String())
}

func TestEstimate_UpstreamFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
	}{
		{"upstream 500", http.StatusInternalServerError, map[string]any{"error": "boom"}},
		{"no choices", http.StatusOK, map[string]any{"choices": []any{}}},
		{"content not JSON", http.StatusOK, openAIChatResponse("I think about 500 calories")},
		{"nutrition missing", http.StatusOK, openAIChatResponse(`{"dish_name":"Soup"}`)},
		{"calories missing", http.StatusOK, openAIChatResponse(`{"nutrition":{"protein":1,"carbs":2,"fat":3}}`)},
		{"negative value", http.StatusOK, openAIChatResponse(`{"nutrition":{"calories":-5,"protein":1,"carbs":2,"fat":3}}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, mock := setupEstimateTest(t)
			mock.setMock(tc.status, tc.body)

			w := doEstimateRequest(router, "/api/meals/estimate", `{"description":"soup"}`)
			assert.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
		})
	}
}

func TestEstimate_InvalidInput(t *testing.T) {
	router, _ := setupEstimateTest(t)

	for _, body := range []string{`{}`, `{"description":"   "}`, `not json`} {
		w := doEstimateRequest(router, "/api/meals/estimate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestEstimate_MissingAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{estimator: newNutritionEstimator(config{OpenAIBaseURL: "http://127.0.0.1:0"}, zap.NewNop())}
	router := gin.New()
	router.POST("/api/meals/estimate", h.estimateMeal)

	w := doEstimateRequest(router, "/api/meals/estimate", `{"description":"toast"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestEstimateImage(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(
		"```json\n{\"dish_name\":\"Caesar Salad\",\"cuisine\":\"American\",\"portion_size\":\"1 bowl\",\"nutrition\":{\"calories\":320,\"protein\":12,\"carbs\":14,\"fat\":24}}\n```"))

	img := base64.StdEncoding.EncodeToString([]byte("\x89PNG fake image bytes"))
	w := doEstimateRequest(router, "/api/meals/estimate-image", `{"image_base64":"`+img+`","mime_type":"image/png"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp nutritionEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Caesar Salad", resp.DishName)
	assert.Equal(t, "1 bowl", resp.PortionSize)
	assert.Equal(t, 320, resp.Calories)

	_, sent := mock.last()
	assert.Equal(t, "vision-model", sent.Model)
	// Content arrives as a list of parts; the image part carries a data URL.
	require.Len(t, sent.Messages, 2)
	raw, err := json.Marshal(sent.Messages[1].Content)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "data:image/png;base64,"+img)
}

func TestEstimateImage_InvalidInput(t *testing.T) {
	router, _ := setupEstimateTest(t)
	valid := base64.StdEncoding.EncodeToString([]byte("img"))

	cases := map[string]string{
		"missing image":  `{}`,
		"invalid base64": `{"image_base64":"%%%not-base64%%%"}`,
		"non-image mime": `{"image_base64":"` + valid + `","mime_type":"application/pdf"}`,
	}
	for name, body := range cases {
		w := doEstimateRequest(router, "/api/meals/estimate-image", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s: %s", name, w.Body.String())
	}
}

func TestEstimateImage_OversizedBodyRejectedBeforeDecoding(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(`{"nutrition":{"calories":1,"protein":0,"carbs":0,"fat":0}}`))

	huge := strings.Repeat("A", maxImageRequestBytes)
	w := doEstimateRequest(router, "/api/meals/estimate-image", `{"image_base64":"`+huge+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	_, sent := mock.last()
	assert.Empty(t, sent.Model, "upstream must not be called")
}

func TestEstimate_UpstreamBodyIsCapped(t *testing.T) {
	router, mock := setupEstimateTest(t)
	mock.setMock(http.StatusOK, openAIChatResponse(strings.Repeat("x", maxUpstreamBytes)))

	w := doEstimateRequest(router, "/api/meals/estimate", `{"description":"soup"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestParseEstimate_StripsFences(t *testing.T) {
	for _, content := range []string{
		"```json\n{\"nutrition\":{\"calories\":100,\"protein\":1,\"carbs\":2,\"fat\":3}}\n```",
		"```\n{\"nutrition\":{\"calories\":100,\"protein\":1,\"carbs\":2,\"fat\":3}}\n```",
		"  {\"nutrition\":{\"calories\":100,\"protein\":1,\"carbs\":2,\"fat\":3}}  ",
	} {
		est, err := parseEstimate(content)
		if !assert.NoError(t, err, "parseEstimate(%q)", content) {
			continue
		}
		assert.Equal(t, 100, est.Calories)
		assert.Equal(t, 3, est.Fat)
	}
}

func TestParseEstimate_ZeroIsAllowed(t *testing.T) {
	est, err := parseEstimate(`{"dish_name":"Black coffee","nutrition":{"calories":2,"protein":0,"carbs":0,"fat":0}}`)
	require.NoError(t, err)
	assert.Equal(t, 2, est.Calories)
	assert.Equal(t, 0, est.Protein)
}
