package main

import (
	"github.com/spf13/cobra"

	"suncoop/backend/pkg/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "数据库迁移",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "应用全部未执行的迁移",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			sqlDB, err := rt.db.DB()
			if err != nil {
				return err
			}
			return database.RunMigrations(sqlDB, rt.logger)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "回滚迁移",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			sqlDB, err := rt.db.DB()
			if err != nil {
				return err
			}
			return database.RollbackMigrations(sqlDB, steps, rt.logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "回滚步数")
	cmd.AddCommand(down)

	return cmd
}
