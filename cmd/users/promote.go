package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/confusion-labs/gateway/internal/repository"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the elevated privilege level",
	Long: `Grants the elevated privilege level to an identity. Tokens carry only the
identity reference, so the change applies to the next authenticated request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setElevated(cmd, true)
	},
}

var demoteCmd = &cobra.Command{
	Use:   "demote",
	Short: "Revoke the elevated privilege level",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setElevated(cmd, false)
	},
}

func setElevated(cmd *cobra.Command, elevated bool) error {
	handle := strings.TrimSpace(usernameFlag)
	if handle == "" {
		return fmt.Errorf("--username flag is required")
	}

	ctx, store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	identity, err := store.Identities.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no identity with handle %q", handle)
		}
		return err
	}

	if identity.Elevated == elevated {
		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "%s is already %s\n", identity.Handle, levelOf(identity))
		return nil
	}

	identity.Elevated = elevated
	if err := store.Identities.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "%s is now %s\n", identity.Handle, levelOf(identity))
	return nil
}
