package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgMealRepo stores meals in the meals table. Food lines live in a jsonb
// column; totals are never stored.
type pgMealRepo struct{ db dbPool }

func newPGMealRepo(db dbPool) *pgMealRepo { return &pgMealRepo{db: db} }

const mealColumns = `id::text, user_id, name, eaten_at, category, cuisine, notes, foods, created_at`

func (r *pgMealRepo) ListMeals(ctx context.Context, userID int) ([]Meal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+mealColumns+` FROM meals WHERE user_id = $1 ORDER BY eaten_at, created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer rows.Close()

	meals := []Meal{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	return meals, nil
}

func (r *pgMealRepo) InsertMeal(ctx context.Context, m Meal) (Meal, error) {
	foods, err := encodeFoods(m.Foods)
	if err != nil {
		return Meal{}, err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO meals (id, user_id, name, eaten_at, category, cuisine, notes, foods, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		m.ID, m.UserID, m.Name, m.EatenAt, string(m.Category), m.Cuisine, m.Notes, foods, m.CreatedAt)
	if err != nil {
		return Meal{}, fmt.Errorf("insert meal: %w", err)
	}
	return m, nil
}

// UpdateMeal rewrites every mutable column. Ownership is enforced by
// requiring both id and user_id to match.
func (r *pgMealRepo) UpdateMeal(ctx context.Context, m Meal) (Meal, error) {
	foods, err := encodeFoods(m.Foods)
	if err != nil {
		return Meal{}, err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE meals SET name = $3, eaten_at = $4, category = $5, cuisine = $6, notes = $7, foods = $8::jsonb
		 WHERE id = $1 AND user_id = $2`,
		m.ID, m.UserID, m.Name, m.EatenAt, string(m.Category), m.Cuisine, m.Notes, foods)
	if err != nil {
		return Meal{}, fmt.Errorf("update meal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Meal{}, fmt.Errorf("%w: meal %s", errNotFound, m.ID)
	}
	return m, nil
}

func (r *pgMealRepo) DeleteMeal(ctx context.Context, userID int, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM meals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: meal %s", errNotFound, id)
	}
	return nil
}

func scanMeal(row pgx.Row) (Meal, error) {
	var (
		m        Meal
		category string
		foods    []byte
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.EatenAt, &category, &m.Cuisine, &m.Notes, &foods, &m.CreatedAt); err != nil {
		return Meal{}, fmt.Errorf("scan meal: %w", err)
	}
	m.Category = MealCategory(category)
	if len(foods) > 0 {
		if err := json.Unmarshal(foods, &m.Foods); err != nil {
			return Meal{}, fmt.Errorf("decode foods for meal %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// encodeFoods renders food lines as a JSON string. A string (not []byte)
// keeps the simple query protocol from sending it as bytea.
func encodeFoods(foods []FoodLine) (string, error) {
	if foods == nil {
		foods = []FoodLine{}
	}
	b, err := json.Marshal(foods)
	if err != nil {
		return "", fmt.Errorf("encode foods: %w", err)
	}
	return string(b), nil
}
