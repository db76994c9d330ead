package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Session Commands
// =============================================================================

func buildLoginCmd(flags *globalFlags) *cobra.Command {
	var (
		name  string
		email string
		token string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a bearer token or, against the dev backend, a name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, flags, name, email, token)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name for a dev sign-in")
	cmd.Flags().StringVar(&email, "email", "", "Email for a dev sign-in")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token issued by the content API")
	return cmd
}

func buildLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, flags)
		},
	}
}

func buildWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, flags)
		},
	}
}

// =============================================================================
// List Commands
// =============================================================================

func buildListsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "lists",
		Aliases: []string{"ls"},
		Short:   "Show your lists",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLists(cmd, flags)
		},
	}
}

func buildCreateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, flags, args[0])
		},
	}
}

func buildRenameCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <list-id> <title>",
		Short: "Rename a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(cmd, flags, args[0], args[1])
		},
	}
}

func buildDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list-id>",
		Short: "Delete a list you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, flags, args[0])
		},
	}
}

func buildLeaveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <list-id>",
		Short: "Leave a list shared with you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeave(cmd, flags, args[0])
		},
	}
}

func buildCopyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <list-id>",
		Short: "Duplicate a list with its products",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd, flags, args[0])
		},
	}
}

func buildReorderCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <from> <to>",
		Short: "Move the list at position from to position to (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReorder(cmd, flags, args[0], args[1])
		},
	}
}

// =============================================================================
// Share Commands
// =============================================================================

func buildShareCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage list sharing",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "accept <code>",
			Short: "Join a list by its share code",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runShareAccept(cmd, flags, args[0])
			},
		},
		&cobra.Command{
			Use:   "remove <list-id> <user-id>",
			Short: "Remove a member from a list you own",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runShareRemove(cmd, flags, args[0], args[1])
			},
		},
	)
	return cmd
}

// =============================================================================
// Product Commands
// =============================================================================

func buildShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list-id>",
		Short: "Show the products on a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, flags, args[0])
		},
	}
}

func buildSearchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the product catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, flags, args[0])
		},
	}
}

func buildAddCmd(flags *globalFlags) *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add <list-id> <product>",
		Short: "Add a catalog product, by id or exact title, or a new custom product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, flags, args[0], args[1], quantity)
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "How many to add")
	return cmd
}

func buildRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <list-id> <product-id>",
		Short: "Take a product off a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, flags, args[0], args[1])
		},
	}
}

func buildCheckCmd(flags *globalFlags) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "check <list-id> <product-id>",
		Short: "Mark a product as checked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, flags, args[0], args[1], !undo)
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Uncheck instead")
	return cmd
}

func buildBagCmd(flags *globalFlags) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "bag <list-id> <product-id>",
		Short: "Mark a product as in the bag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBag(cmd, flags, args[0], args[1], !undo)
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Take it out of the bag instead")
	return cmd
}

func buildQuantityCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quantity <list-id> <product-id> <quantity>",
		Short: "Change how many of a product are needed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuantity(cmd, flags, args[0], args[1], args[2])
		},
	}
}

// =============================================================================
// Realtime Commands
// =============================================================================

func buildWatchCmd(flags *globalFlags) *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to your lists until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags, listID)
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "Also follow the products of this list")
	return cmd
}
