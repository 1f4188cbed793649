package users

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/hashicorp/go-bexpr"
	"github.com/spf13/cobra"

	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/confusion-labs/gateway/internal/services/iam"
)

var (
	filterFlag string
	levelFlag  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	Long: `Lists identities, optionally narrowed by a boolean expression over the
fields handle, elevated, provider, given_name and family_name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Compile before touching the database so bad expressions fail fast.
		match, err := compileFilter(filterFlag)
		if err != nil {
			return err
		}

		var level iam.Level
		if levelFlag != "" {
			if level, err = iam.ParseLevel(levelFlag); err != nil {
				return err
			}
		}

		ctx, store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		all, err := store.Identities.List(ctx)
		if err != nil {
			return err
		}

		selected, err := filterIdentities(all, match)
		if err != nil {
			return err
		}
		if level != "" {
			selected = atLevel(selected, level)
		}

		out := cmd.OutOrStdout()
		if len(selected) == 0 {
			color.New(color.FgYellow).Fprintln(out, "No identities found")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tHANDLE\tNAME\tPROVIDER\tLEVEL")
		for i := range selected {
			identity := &selected[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				identity.ID,
				identity.Handle,
				strings.TrimSpace(identity.GivenName+" "+identity.FamilyName),
				providerOf(identity),
				levelOf(identity),
			)
		}
		return tw.Flush()
	},
}

// compileFilter returns nil for an empty expression.
func compileFilter(expr string) (*bexpr.Evaluator, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return eval, nil
}

// filterIdentities keeps the identities match accepts. A nil evaluator keeps all.
func filterIdentities(identities []models.Identity, match *bexpr.Evaluator) ([]models.Identity, error) {
	if match == nil {
		return identities, nil
	}

	selected := make([]models.Identity, 0, len(identities))
	for i := range identities {
		ok, err := match.Evaluate(filterFields(&identities[i]))
		if err != nil {
			return nil, fmt.Errorf("evaluate filter for %q: %w", identities[i].Handle, err)
		}
		if ok {
			selected = append(selected, identities[i])
		}
	}
	return selected, nil
}

// atLevel keeps the identities holding exactly level.
func atLevel(identities []models.Identity, level iam.Level) []models.Identity {
	selected := make([]models.Identity, 0, len(identities))
	for i := range identities {
		if levelOf(&identities[i]) == level {
			selected = append(selected, identities[i])
		}
	}
	return selected
}

func filterFields(identity *models.Identity) map[string]any {
	return map[string]any{
		"handle":      identity.Handle,
		"elevated":    identity.Elevated,
		"provider":    providerOf(identity),
		"given_name":  identity.GivenName,
		"family_name": identity.FamilyName,
	}
}

func providerOf(identity *models.Identity) string {
	if identity.Provider == nil {
		return ""
	}
	return *identity.Provider
}

func levelOf(identity *models.Identity) iam.Level {
	if identity.Elevated {
		return iam.LevelElevated
	}
	return iam.LevelStandard
}
