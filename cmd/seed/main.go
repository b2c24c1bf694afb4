// Command seed manages identities directly in MongoDB, for bootstrapping the
// first administrator before the admin API is reachable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/config"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/database"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/users"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "seed",
		Short:         "Bootstrap Dental360 identities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(identityCmd(), deactivateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// openUsers connects to MongoDB using the service configuration.
func openUsers(ctx context.Context) (*users.Service, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.LogLevel)
	if cfg.MongoDB.URI == "" {
		return nil, nil, errors.New("MONGODB_URI is required")
	}
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		return nil, nil, err
	}
	db := client.Database(cfg.MongoDB.Database)
	repo := users.NewMongoRepository(db.Collection(database.UsersCollection), db.Collection(database.CountersCollection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }
	return users.NewService(repo, users.NewHasher(cfg.Security.BcryptCost)), closeFn, nil
}

func identityCmd() *cobra.Command {
	var (
		username string
		password string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Register an identity",
		Long: `Register an identity with the given role.

The password may be passed with --password or the SEED_PASSWORD environment
variable. Roles: admin, manager, staff, user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SEED_PASSWORD")
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			svc, closeFn, err := openUsers(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := svc.Register(ctx, username, password, r)
			if err != nil {
				return err
			}
			fmt.Printf("registered %s (id %d, role %s)\n", id.Username, id.ID, id.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username to register")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password (default $SEED_PASSWORD)")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleAdmin), "role of the identity")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func deactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <username>",
		Short: "Deactivate an identity so it can no longer log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			svc, closeFn, err := openUsers(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := svc.GetByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := svc.Deactivate(ctx, id.ID); err != nil {
				return err
			}
			fmt.Printf("deactivated %s (id %d); live sessions expire with their refresh window\n", id.Username, id.ID)
			return nil
		},
	}
	return cmd
}
