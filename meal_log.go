package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// listMeals returns the user's meals. With ?date=YYYY-MM-DD only meals eaten
// on that local day (per tz) are returned; otherwise the whole collection.
// GET /api/meals.
func (h *Handler) listMeals(c *gin.Context) {
	userID := c.GetInt("user_id")

	meals, err := h.meals.Meals(c, userID)
	if err != nil {
		respondError(c, err, "failed to fetch meals")
		return
	}
	if c.Query("date") != "" {
		loc, ok := requestLocation(c)
		if !ok {
			return
		}
		day, ok := h.requestDay(c, loc)
		if !ok {
			return
		}
		meals = mealsOnDay(meals, day, loc)
	}

	c.JSON(http.StatusOK, meals)
}

// createMeal logs a new meal. eaten_at defaults to now when omitted.
// POST /api/meals. Returns 201 with the saved meal including derived totals.
func (h *Handler) createMeal(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	meal, err := h.meals.Add(c.Request.Context(), userID, body)
	if err != nil {
		respondError(c, err, "failed to create meal")
		return
	}

	c.JSON(http.StatusCreated, meal)
}

// updateMeal applies the provided fields to an existing meal. Sending foods
// replaces every food line.
// PUT /api/meals/:id.
func (h *Handler) updateMeal(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	var body updateMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	meal, err := h.meals.Update(c.Request.Context(), userID, id, body)
	if err != nil {
		respondError(c, err, "failed to update meal")
		return
	}

	c.JSON(http.StatusOK, meal)
}

// deleteMeal removes a meal. Returns 204 on success, 404 if not found.
// DELETE /api/meals/:id.
func (h *Handler) deleteMeal(c *gin.Context) {
	userID := c.GetInt("user_id")

	if err := h.meals.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "failed to delete meal")
		return
	}

	c.Status(http.StatusNoContent)
}

// getDailySummary returns the meals eaten on one local day, their totals and
// the user's goals.
// GET /api/meals/daily?date=YYYY-MM-DD&tz=Area/City (date defaults to today in tz).
func (h *Handler) getDailySummary(c *gin.Context) {
	userID := c.GetInt("user_id")

	loc, ok := requestLocation(c)
	if !ok {
		return
	}
	day, ok := h.requestDay(c, loc)
	if !ok {
		return
	}

	meals, err := h.meals.Meals(c, userID)
	if err != nil {
		respondError(c, err, "failed to fetch meals")
		return
	}
	goals, err := h.profiles.Targets(c, userID)
	if err != nil {
		respondError(c, err, "failed to fetch goals")
		return
	}

	onDay, totals := summarizeDay(meals, day, loc)
	c.JSON(http.StatusOK, dailySummary{
		Date:         day,
		Timezone:     loc.String(),
		Totals:       totals,
		Goals:        goals,
		CaloriesLeft: float64(goals.Calories) - totals.Calories,
		Meals:        onDay,
	})
}

// getWeekSummary returns the Mon..Sun buckets of the week offset weeks back
// from the current one.
// GET /api/meals/week-summary?offset=N&tz=Area/City. Negative offsets act as 0.
func (h *Handler) getWeekSummary(c *gin.Context) {
	userID := c.GetInt("user_id")

	loc, ok := requestLocation(c)
	if !ok {
		return
	}
	offset := 0
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			apiError(c, http.StatusBadRequest, "offset must be an integer")
			return
		}
		offset = n
	}

	meals, err := h.meals.Meals(c, userID)
	if err != nil {
		respondError(c, err, "failed to fetch meals")
		return
	}

	c.JSON(http.StatusOK, summarizeWeek(meals, offset, h.clock.Now(), loc))
}
