package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// pgWaterRepo persists one water_intake row per user per day. The
// UNIQUE(user_id, date) constraint makes every write an upsert.
type pgWaterRepo struct{ db dbPool }

func newPGWaterRepo(db dbPool) *pgWaterRepo { return &pgWaterRepo{db: db} }

// GetIntake returns the day's intake in ml, 0 when nothing was recorded.
func (r *pgWaterRepo) GetIntake(ctx context.Context, userID int, day DayKey) (int, error) {
	var ml int
	err := r.db.QueryRow(ctx,
		"SELECT ml FROM water_intake WHERE user_id = @userID AND date = @date",
		pgx.NamedArgs{"userID": userID, "date": day.String()}).Scan(&ml)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return ml, err
}

func (r *pgWaterRepo) UpsertIntake(ctx context.Context, userID int, day DayKey, ml int) (waterIntakeRecord, error) {
	return queryOne[waterIntakeRecord](r.db, ctx,
		`INSERT INTO water_intake (user_id, date, ml)
		 VALUES (@userID, @date, @ml)
		 ON CONFLICT (user_id, date) DO UPDATE SET ml = EXCLUDED.ml, updated_at = now()
		 RETURNING user_id, date, ml, updated_at`,
		pgx.NamedArgs{"userID": userID, "date": day.String(), "ml": ml})
}

func (r *pgWaterRepo) ListIntake(ctx context.Context, userID int, start, end DayKey) ([]waterIntakeRecord, error) {
	return queryMany[waterIntakeRecord](r.db, ctx,
		`SELECT user_id, date, ml, updated_at FROM water_intake
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.String(), "end": end.String()})
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// waterDay resolves the tracker day for a request: ?date, else today in tz.
func (h *Handler) waterDay(c *gin.Context) (DayKey, bool) {
	loc, ok := requestLocation(c)
	if !ok {
		return DayKey{}, false
	}
	return h.requestDay(c, loc)
}

// getWater returns the hydration state for the day.
// GET /api/water?date=YYYY-MM-DD.
func (h *Handler) getWater(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	st, err := h.water.State(c, c.GetInt("user_id"), day)
	if err != nil {
		respondError(c, err, "failed to fetch water intake")
		return
	}
	c.JSON(http.StatusOK, st)
}

// addWaterIntake adds water to the day's intake, capped at the adjusted goal.
// POST /api/water/intake. Body: { "ml": 250 }.
func (h *Handler) addWaterIntake(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	var body struct {
		ML int `json:"ml"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.water.AddWater(c, c.GetInt("user_id"), day, body.ML)
	if err != nil {
		respondError(c, err, "failed to record water intake")
		return
	}
	c.JSON(http.StatusOK, st)
}

type supplementNameRequest struct {
	Name string `json:"name"`
}

// addSupplement adds a custom supplement, selected, with its water
// contribution looked up by keyword.
// POST /api/water/supplements. Body: { "name": "Electrolyte Mix" }.
func (h *Handler) addSupplement(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	var body supplementNameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, added, err := h.water.AddSupplement(c, c.GetInt("user_id"), day, body.Name)
	if err != nil {
		respondError(c, err, "failed to add supplement")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"supplement": added, "state": st})
}

// toggleSupplement flips a supplement's selection.
// POST /api/water/supplements/toggle. Body: { "name": "Creatine" }.
func (h *Handler) toggleSupplement(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	var body supplementNameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.water.ToggleSupplement(c, c.GetInt("user_id"), day, body.Name)
	if err != nil {
		respondError(c, err, "failed to toggle supplement")
		return
	}
	c.JSON(http.StatusOK, st)
}

// detectSupplements selects catalog supplements mentioned in a description.
// POST /api/water/detect. Body: { "description": "oats with creatine" }.
func (h *Handler) detectSupplements(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, matched, err := h.water.Detect(c, c.GetInt("user_id"), day, body.Description)
	if err != nil {
		respondError(c, err, "failed to detect supplements")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detected": matched, "state": st})
}

// resetWater clears selections, restores the catalog and zeroes intake.
// POST /api/water/reset.
func (h *Handler) resetWater(c *gin.Context) {
	day, ok := h.waterDay(c)
	if !ok {
		return
	}
	st, err := h.water.Reset(c, c.GetInt("user_id"), day)
	if err != nil {
		respondError(c, err, "failed to reset water tracker")
		return
	}
	c.JSON(http.StatusOK, st)
}

// getWaterHistory returns persisted daily intake within [start, end].
// GET /api/water/history?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
func (h *Handler) getWaterHistory(c *gin.Context) {
	if c.Query("start") == "" || c.Query("end") == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	start, err := parseDayKey(c.Query("start"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	end, err := parseDayKey(c.Query("end"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	records, err := h.water.History(c, c.GetInt("user_id"), start, end)
	if err != nil {
		respondError(c, err, "failed to fetch water history")
		return
	}
	c.JSON(http.StatusOK, records)
}
