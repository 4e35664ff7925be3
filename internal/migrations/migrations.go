// Package migrations defines all database migrations for the fleet control plane.
// This file contains the ordered list of all migrations that need to be applied to the database.
package migrations

import (
	"context"

	"github.com/fleetward/fleetward/pkg/database"
)

// getAllMigrations returns all available migrations in the system.
// Migrations should be added to this list in version order.
func getAllMigrations() []Migration {
	return []Migration{
		migration001InitialIndexes(),
		// Add new migrations here...
	}
}

// migration001InitialIndexes creates the initial database indexes.
// This migration creates all the basic indexes required for the application.
func migration001InitialIndexes() Migration {
	return Migration{
		Version:     1,
		Description: "Create initial database indexes for optimal performance",
		Up: func(ctx context.Context, db *database.Client) error {
			return db.CreateIndexes(ctx)
		},
		Down: func(ctx context.Context, db *database.Client) error {
			collections := []string{
				"users", "sessions", "minions", "events", "jobs", "job_returns",
				"permission_groups", "permission_group_users", "minion_presets",
			}

			for _, collectionName := range collections {
				collection := db.Collection(collectionName)

				cursor, err := collection.Indexes().List(ctx)
				if err != nil {
					return err
				}

				var indexes []map[string]interface{}
				if err := cursor.All(ctx, &indexes); err != nil {
					return err
				}

				for _, index := range indexes {
					if name, ok := index["name"].(string); ok && name != "_id_" {
						if _, err := collection.Indexes().DropOne(ctx, name); err != nil {
							return err
						}
					}
				}
			}

			return nil
		},
	}
}
