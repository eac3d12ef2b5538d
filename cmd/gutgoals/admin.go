package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/history"
)

var (
	clearUser    string
	clearAllData bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := openDB(); err != nil {
			return err
		}
		log.Info("Database migrated")
		return nil
	},
}

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Inspect and reset stored goals",
}

var goalsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a user's active goals and replacement queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(clearUser)
		if err != nil {
			return fmt.Errorf("invalid --user %q: %w", clearUser, err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		backend, closeBackend, err := openBackend(cmd.Context(), db)
		if err != nil {
			return err
		}
		defer closeBackend()

		manager := goals.NewManager(backend, goalOptions()...)
		if clearAllData {
			if err := history.ClearUser(cmd.Context(), manager, userID); err != nil {
				return err
			}
		} else {
			manager.For(userID).ClearAll(cmd.Context())
		}

		log.Info("Cleared goals", zap.Stringer("user_id", userID), zap.Bool("all_data", clearAllData))
		return nil
	},
}

var goalsQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Print a user's pending replacements",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(clearUser)
		if err != nil {
			return fmt.Errorf("invalid --user %q: %w", clearUser, err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		backend, closeBackend, err := openBackend(cmd.Context(), db)
		if err != nil {
			return err
		}
		defer closeBackend()

		store := goals.NewManager(backend, goalOptions()...).For(userID)
		queue, err := store.Queue(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range queue {
			fmt.Fprintf(out, "%s\tdismissed %s\tmatures %s\n",
				e.GoalID,
				e.DeletedAt().Format("2006-01-02 15:04:05"),
				e.DeletedAt().Add(store.Cooldown()).Format("2006-01-02 15:04:05"),
			)
		}
		return nil
	},
}

func init() {
	goalsCmd.PersistentFlags().StringVar(&clearUser, "user", "", "User ID")
	_ = goalsCmd.MarkPersistentFlagRequired("user")
	goalsClearCmd.Flags().BoolVar(&clearAllData, "all-data", false, "Also remove log history")

	goalsCmd.AddCommand(goalsClearCmd)
	goalsCmd.AddCommand(goalsQueueCmd)
}
