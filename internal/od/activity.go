package od

import (
	"context"
	"database/sql"
)

// Activity is an entry of the read-only activity catalog.
type Activity struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// DefaultActivities seeds the catalog.
var DefaultActivities = []Activity{
	{Name: "Inter-College Sports Tournament", Type: "sports", Description: "Basketball, Cricket, Football competitions"},
	{Name: "National Level Hackathon", Type: "hackathon", Description: "24-hour coding competition"},
	{Name: "Cultural Fest", Type: "cultural", Description: "Music, Dance, Drama competitions"},
	{Name: "Technical Symposium", Type: "technical", Description: "Paper presentation, Project expo"},
	{Name: "Workshop on AI/ML", Type: "workshop", Description: "Hands-on training session"},
	{Name: "Sports Practice", Type: "sports", Description: "Regular team practice sessions"},
	{Name: "Robotics Competition", Type: "technical", Description: "Inter-department robotics challenge"},
	{Name: "Debate Competition", Type: "cultural", Description: "Inter-college debate championship"},
	{Name: "Code Debugging Contest", Type: "technical", Description: "Debugging competition"},
	{Name: "Athletics Meet", Type: "sports", Description: "Track and field events"},
}

// Catalog lists activities.
type Catalog interface {
	Activities(ctx context.Context) ([]Activity, error)
}

// StaticCatalog serves DefaultActivities from memory.
type StaticCatalog struct{}

func (StaticCatalog) Activities(context.Context) ([]Activity, error) {
	out := make([]Activity, len(DefaultActivities))
	for i, a := range DefaultActivities {
		a.ID = i + 1
		out[i] = a
	}
	return out, nil
}

// ActivityRepository reads the catalog from Postgres.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a repo.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Seed inserts DefaultActivities that are not present yet.
func (r *ActivityRepository) Seed(ctx context.Context) error {
	for _, a := range DefaultActivities {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO activities (name, type, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO NOTHING
		`, a.Name, a.Type, a.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *ActivityRepository) Activities(ctx context.Context) ([]Activity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, COALESCE(description, '') FROM activities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Description); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
