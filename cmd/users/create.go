package users

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/repository"
)

var (
	usernameFlag  string
	passwordFlag  string
	stdinFlag     bool
	firstnameFlag string
	lastnameFlag  string
	elevatedFlag  bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a password identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle := strings.TrimSpace(usernameFlag)
		if handle == "" {
			return fmt.Errorf("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		ctx, store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		hash, err := store.Hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		identity := &models.Identity{
			Handle:       handle,
			PasswordHash: &hash,
			GivenName:    firstnameFlag,
			FamilyName:   lastnameFlag,
			Elevated:     elevatedFlag,
		}
		if err := store.Identities.Create(ctx, identity); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return fmt.Errorf("identity with handle %q already exists", handle)
			}
			return fmt.Errorf("failed to create identity: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen, color.Bold).Fprintln(out, "Identity created successfully!")
		printIdentity(cmd, identity)
		return nil
	},
}

func printIdentity(cmd *cobra.Command, identity *models.Identity) {
	out := cmd.OutOrStdout()
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintln(out, "----------------------------------------")
	fmt.Fprintf(out, "%s %s\n", label("ID:"), identity.ID)
	fmt.Fprintf(out, "%s %s\n", label("Handle:"), identity.Handle)
	if name := strings.TrimSpace(identity.GivenName + " " + identity.FamilyName); name != "" {
		fmt.Fprintf(out, "%s %s\n", label("Name:"), name)
	}
	if identity.HasProviderLink() {
		fmt.Fprintf(out, "%s %s (%s)\n", label("Provider:"), *identity.Provider, *identity.ProviderID)
	}
	fmt.Fprintf(out, "%s %s\n", label("Level:"), levelOf(identity))
	fmt.Fprintln(out, "----------------------------------------")
}
