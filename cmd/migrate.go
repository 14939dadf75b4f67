package cmd

import (
	"fmt"

	dbs "github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the control-plane schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := connectControlPlane(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := dbs.Migrate(cmd.Context(), pool); err != nil {
			return fmt.Errorf("migrate, %w", err)
		}
		fmt.Println("Migration complete")
		return nil
	},
}
