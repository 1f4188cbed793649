package users

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/confusion-labs/gateway/cmd/cmdutil"
	"github.com/confusion-labs/gateway/internal/config"
)

// UsersCmd is the parent command for identity management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage gateway identities",
	Long:  `Commands for managing identities directly against the database.`,
}

func init() {
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Handle of the identity (required)")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the identity (use --stdin to avoid shell history)")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")
	createCmd.Flags().StringVar(&firstnameFlag, "firstname", "", "Given name")
	createCmd.Flags().StringVar(&lastnameFlag, "lastname", "", "Family name")
	createCmd.Flags().BoolVar(&elevatedFlag, "elevated", false, "Grant the elevated privilege level")

	listCmd.Flags().StringVar(&levelFlag, "level", "", "Only list identities at this privilege level (standard or elevated)")
	listCmd.Flags().StringVar(&filterFlag, "filter", "", `Boolean filter expression, e.g. 'elevated == true and provider == "facebook"'`)

	promoteCmd.Flags().StringVar(&usernameFlag, "username", "", "Handle of the identity (required)")
	demoteCmd.Flags().StringVar(&usernameFlag, "username", "", "Handle of the identity (required)")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(listCmd)
	UsersCmd.AddCommand(promoteCmd)
	UsersCmd.AddCommand(demoteCmd)
}

// openStore loads configuration and opens the identity store.
func openStore(cmd *cobra.Command) (context.Context, *cmdutil.Store, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cmdutil.NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return ctx, store, nil
}
