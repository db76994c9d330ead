package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/nkkko/lista/internal/app"
	"github.com/nkkko/lista/internal/config"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/spf13/cobra"
)

// errNotSignedIn is returned by commands that need a user
var errNotSignedIn = errors.New("not signed in; run \"lista login\" first")

// =============================================================================
// Shared helpers
// =============================================================================

// openApp loads the configuration and opens the client state
func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, error) {
	cfg, err := config.LoadConfig(flags.configPath, config.Overrides{
		APIBaseURL:  flags.apiURL,
		RealtimeURL: flags.realtimeURL,
		DataDir:     flags.dataDir,
		LogLevel:    flags.logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.ToLoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	if err := logging.Setup(logCfg); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	a, err := app.New(app.Config{
		BaseURL:       cfg.API.BaseURL,
		ClientOptions: cfg.ToClientOptions(),
		Realtime:      cfg.ToRealtimeConfig(),
		Session:       cfg.ToSessionConfig(),
		TokenKey:      cfg.Token.Key,
		Notifications: cfg.ToNotificationConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}
	return a, nil
}

// withSession runs fn with a signed-in app and reports the resulting notification
func withSession(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ok, err := a.Start(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNotSignedIn
	}

	if err := fn(ctx, a); err != nil {
		return err
	}
	report(cmd.OutOrStdout(), a)
	return nil
}

// withList opens the list named by arg before calling fn
func withList(cmd *cobra.Command, flags *globalFlags, arg string, fn func(ctx context.Context, a *app.App, listID proto.ID) error) error {
	listID, err := parseID("list id", arg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		if err := a.OpenList(ctx, listID); err != nil {
			return err
		}
		return fn(ctx, a, listID)
	})
}

func report(w io.Writer, a *app.App) {
	if n, ok := a.Notifications.Current(); ok {
		fmt.Fprintln(w, n.Message)
	}
}

func parseID(what, s string) (proto.ID, error) {
	id, err := proto.ParseID(strings.TrimSpace(s))
	if err != nil || id.IsZero() {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func printLists(w io.Writer, lists []proto.List) {
	if len(lists) == 0 {
		fmt.Fprintln(w, "No lists yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tCHECKED\tBAGGED\tMEMBERS\tCODE")
	for i, l := range lists {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d/%d\t%d\t%s\n",
			i+1, l.Id, l.Title,
			l.CheckedProductCount, l.ProductCount,
			l.BaggedProductCount, l.ProductCount,
			len(l.SharedWith)+1, l.ShareCode)
	}
	_ = tw.Flush()
}

func printItems(w io.Writer, title string, items []proto.ListProduct) {
	fmt.Fprintf(w, "%s\n", title)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tPRODUCT\tQTY\tCHECKED\tBAGGED")
	for _, item := range items {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s\n", item.ProductId, item.Title, item.Quantity, mark(item.Checked), mark(item.Bagged))
	}
	_ = tw.Flush()
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return "-"
}

// =============================================================================
// Session handlers
// =============================================================================

func runLogin(cmd *cobra.Command, flags *globalFlags, name, email, token string) error {
	if token == "" && strings.TrimSpace(name) == "" {
		return errors.New("either --token or --name is required")
	}

	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if token == "" {
		token, _, err = a.Gateway.DevLogin(ctx, name, email)
		if err != nil {
			return fmt.Errorf("dev sign-in failed: %w", err)
		}
	}

	if err := a.Login(ctx, token); err != nil {
		return err
	}

	user := a.User.Current()
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (id %s)\n", user.Name, user.Id)
	return nil
}

func runLogout(cmd *cobra.Command, flags *globalFlags) error {
	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Logout(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, flags *globalFlags) error {
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		if err := a.User.Refresh(ctx); err != nil {
			return err
		}
		user := a.User.Current()
		fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s)", user.Name, user.Id)
		if user.Email != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " <%s>", user.Email)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}

// =============================================================================
// List handlers
// =============================================================================

func runLists(cmd *cobra.Command, flags *globalFlags) error {
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		printLists(cmd.OutOrStdout(), a.Lists.Lists())
		return nil
	})
}

func runCreate(cmd *cobra.Command, flags *globalFlags, title string) error {
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		list, err := a.Lists.Create(ctx, title)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %q (id %s, share code %s)\n", list.Title, list.Id, list.ShareCode)
		return nil
	})
}

func runRename(cmd *cobra.Command, flags *globalFlags, idArg, title string) error {
	listID, err := parseID("list id", idArg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		return a.Lists.Rename(ctx, listID, title)
	})
}

func runDelete(cmd *cobra.Command, flags *globalFlags, idArg string) error {
	listID, err := parseID("list id", idArg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		return a.Lists.Delete(ctx, listID)
	})
}

func runLeave(cmd *cobra.Command, flags *globalFlags, idArg string) error {
	listID, err := parseID("list id", idArg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		return a.Lists.Leave(ctx, listID)
	})
}

func runCopy(cmd *cobra.Command, flags *globalFlags, idArg string) error {
	listID, err := parseID("list id", idArg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		_, err := a.Lists.Copy(ctx, listID)
		return err
	})
}

func runReorder(cmd *cobra.Command, flags *globalFlags, fromArg, toArg string) error {
	from, err := strconv.Atoi(fromArg)
	if err != nil {
		return fmt.Errorf("invalid position %q", fromArg)
	}
	to, err := strconv.Atoi(toArg)
	if err != nil {
		return fmt.Errorf("invalid position %q", toArg)
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		if err := a.Lists.Reorder(ctx, from-1, to-1); err != nil {
			return err
		}
		printLists(cmd.OutOrStdout(), a.Lists.Lists())
		return nil
	})
}

// =============================================================================
// Share handlers
// =============================================================================

func runShareAccept(cmd *cobra.Command, flags *globalFlags, code string) error {
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		_, err := a.Lists.AcceptShare(ctx, code)
		return err
	})
}

func runShareRemove(cmd *cobra.Command, flags *globalFlags, listArg, userArg string) error {
	listID, err := parseID("list id", listArg)
	if err != nil {
		return err
	}
	userID, err := parseID("user id", userArg)
	if err != nil {
		return err
	}
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		return a.Lists.RemoveMember(ctx, listID, userID)
	})
}

// =============================================================================
// Product handlers
// =============================================================================

func runShow(cmd *cobra.Command, flags *globalFlags, listArg string) error {
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		printItems(cmd.OutOrStdout(), a.Products.Title(), a.Products.Items())
		return nil
	})
}

func runSearch(cmd *cobra.Command, flags *globalFlags, query string) error {
	return withSession(cmd, flags, func(ctx context.Context, a *app.App) error {
		products, err := a.Products.Search(ctx, query)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No products found.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRODUCT\tCATEGORY")
		for _, p := range products {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Id, p.Title, p.Category)
		}
		return tw.Flush()
	})
}

func runAdd(cmd *cobra.Command, flags *globalFlags, listArg, productArg string, quantity int) error {
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		product, err := resolveProduct(ctx, a, productArg)
		if err != nil {
			return err
		}
		if product == nil {
			_, err := a.Products.AddCustom(ctx, productArg)
			return err
		}
		return a.Products.Add(ctx, *product, quantity)
	})
}

// resolveProduct finds a catalog product by id or exact title; nil means none matched
func resolveProduct(ctx context.Context, a *app.App, arg string) (*proto.Product, error) {
	if id, err := proto.ParseID(arg); err == nil && !id.IsZero() {
		for _, item := range a.Products.Items() {
			if item.ProductId == id {
				return &proto.Product{Id: id, Title: item.Title}, nil
			}
		}
	}

	products, err := a.Products.Search(ctx, arg)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if strings.EqualFold(products[i].Title, strings.TrimSpace(arg)) || products[i].Id.String() == arg {
			return &products[i], nil
		}
	}
	return nil, nil
}

func runRemove(cmd *cobra.Command, flags *globalFlags, listArg, productArg string) error {
	productID, err := parseID("product id", productArg)
	if err != nil {
		return err
	}
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		return a.Products.Remove(ctx, productID)
	})
}

func runCheck(cmd *cobra.Command, flags *globalFlags, listArg, productArg string, checked bool) error {
	productID, err := parseID("product id", productArg)
	if err != nil {
		return err
	}
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		return a.Products.SetChecked(ctx, productID, checked)
	})
}

func runBag(cmd *cobra.Command, flags *globalFlags, listArg, productArg string, bagged bool) error {
	productID, err := parseID("product id", productArg)
	if err != nil {
		return err
	}
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		return a.Products.SetBagged(ctx, productID, bagged)
	})
}

func runQuantity(cmd *cobra.Command, flags *globalFlags, listArg, productArg, quantityArg string) error {
	productID, err := parseID("product id", productArg)
	if err != nil {
		return err
	}
	quantity, err := strconv.Atoi(quantityArg)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", quantityArg)
	}
	return withList(cmd, flags, listArg, func(ctx context.Context, a *app.App, listID proto.ID) error {
		return a.Products.SetQuantity(ctx, productID, quantity)
	})
}

// =============================================================================
// Realtime handlers
// =============================================================================

func runWatch(cmd *cobra.Command, flags *globalFlags, listArg string) error {
	var listID proto.ID
	if listArg != "" {
		id, err := parseID("list id", listArg)
		if err != nil {
			return err
		}
		listID = id
	}

	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := a.Start(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNotSignedIn
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	a.Notifications.OnChange(func(n *proto.Notification) {
		if n != nil {
			printf("* %s\n", n.Message)
		}
	})
	a.Lists.OnChange(func(lists []proto.List) {
		mu.Lock()
		defer mu.Unlock()
		printLists(out, lists)
	})
	a.Products.OnChange(func(id proto.ID, items []proto.ListProduct) {
		if id.IsZero() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printItems(out, a.Products.Title(), items)
	})
	a.OnRedirect(func(id proto.ID) {
		printf("List %s is no longer available\n", id)
	})

	printLists(out, a.Lists.Lists())
	if !listID.IsZero() {
		if err := a.OpenList(ctx, listID); err != nil {
			return err
		}
	}

	printf("Watching for changes, press Ctrl+C to stop\n")
	<-ctx.Done()
	return nil
}
