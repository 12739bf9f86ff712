package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"foodadmin/internal/api"
	"foodadmin/internal/audit"
	"foodadmin/internal/counts"
	"foodadmin/internal/feed"
	"foodadmin/internal/model"
	"foodadmin/internal/notify"
	"foodadmin/internal/session"
)

// Console is the interactive operator surface: it reads commands, gates them
// behind the session, and renders the merged dashboard state.
type Console struct {
	session *session.Session
	client  *api.Client
	feed    *feed.Feed
	counts  *counts.Tracker
	unread  *notify.Counter
	audit   *audit.Manager
	logger  *zap.Logger
	out     io.Writer
}

func New(sess *session.Session, client *api.Client, f *feed.Feed, tracker *counts.Tracker, unread *notify.Counter, auditor *audit.Manager, logger *zap.Logger, out io.Writer) *Console {
	return &Console{
		session: sess,
		client:  client,
		feed:    f,
		counts:  tracker,
		unread:  unread,
		audit:   auditor,
		logger:  logger,
		out:     out,
	}
}

// Run reads commands from in until EOF, "exit" or context cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	c.HandleHelp()

	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		if cmd == "exit" {
			return
		}
		c.Dispatch(ctx, cmd, args)
	}
}

// Dispatch executes one command.
func (c *Console) Dispatch(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "help":
		c.HandleHelp()
	case "login":
		c.HandleLogin(ctx, args)
	case "logout":
		c.HandleLogout(ctx)
	case "whoami":
		c.HandleWhoami()
	case "orders":
		c.HandleOrders()
	case "filter":
		c.HandleFilter(args)
	case "refresh":
		c.HandleRefresh(ctx)
	case "status":
		c.HandleStatus(ctx, args)
	case "counts":
		c.HandleCounts(args)
	case "print":
		c.HandlePrint(ctx, args)
	case "unread":
		c.HandleUnread(args)
	case "categories":
		c.HandleCategories(ctx)
	case "products":
		c.HandleProducts(ctx)
	case "users":
		c.HandleUsers(ctx)
	default:
		fmt.Fprintf(c.out, "Unknown command %q. Type 'help' for usage.\n", cmd)
	}
}

func (c *Console) HandleHelp() {
	fmt.Fprintln(c.out, `Available commands:
	login <email> <password>      - Sign in
	logout                        - Sign out
	whoami                        - Show the signed-in user
	orders                        - Show the live order feed
	filter <status>               - Switch the feed status filter
	refresh                       - Refetch the feed snapshot
	status <orderID> <status>     - Move an order to a new status
	counts [status]               - Show order counts, optionally jump to a bucket
	print <orderID>               - Send an order to the kitchen printer
	unread [orderID]              - Show unread chat messages
	categories|products|users     - List the CRUD collections
	help                          - Show this message
	exit                          - Quit`)
}

// guard refuses protected commands until the session is authenticated.
func (c *Console) guard() bool {
	switch err := c.session.Require(); {
	case errors.Is(err, session.ErrUnresolved):
		fmt.Fprintln(c.out, "Still checking your session, try again in a moment.")
		return false
	case errors.Is(err, session.ErrUnauthenticated):
		fmt.Fprintln(c.out, "Please login first.")
		return false
	}
	return true
}

func (c *Console) actor() string {
	if u := c.session.User(); u != nil {
		return u.Email
	}
	return "anonymous"
}

func (c *Console) HandleLogin(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: login <email> <password>")
		return
	}

	if err := c.session.Login(ctx, args[0], args[1]); err != nil {
		if apiErr, ok := api.AsAPIError(err); ok {
			fmt.Fprintln(c.out, "Login failed:", apiErr.Message)
		} else {
			fmt.Fprintln(c.out, "Login failed:", err)
		}
		return
	}

	c.audit.Record(ctx, audit.NewEntry(c.actor(), "login", "", ""))
	fmt.Fprintln(c.out, "Logged in. Loading dashboard...")

	if err := c.feed.Start(); err != nil {
		fmt.Fprintln(c.out, "Warning: could not load orders:", err)
	}
	if err := c.counts.Start(); err != nil {
		fmt.Fprintln(c.out, "Warning: could not load counts:", err)
	}
	c.unread.Start()
}

func (c *Console) HandleLogout(ctx context.Context) {
	if !c.guard() {
		return
	}

	actor := c.actor()
	if err := c.session.Logout(ctx); err != nil {
		fmt.Fprintln(c.out, "Logout request failed (local session cleared):", err)
	} else {
		fmt.Fprintln(c.out, "Logged out.")
	}
	c.audit.Record(ctx, audit.NewEntry(actor, "logout", "", ""))
}

func (c *Console) HandleWhoami() {
	switch c.session.State() {
	case session.StateAuthenticated:
		u := c.session.User()
		fmt.Fprintf(c.out, "%s %s <%s> (%s)\n", u.FirstName, u.LastName, u.Email, u.Role)
	case session.StateAnonymous:
		fmt.Fprintln(c.out, "Not logged in.")
	default:
		fmt.Fprintln(c.out, "Session state not resolved yet.")
	}
}

func (c *Console) HandleOrders() {
	if !c.guard() {
		return
	}

	if err := c.feed.Err(); err != nil {
		fmt.Fprintln(c.out, "Warning: last snapshot fetch failed:", err)
	}

	orders := c.feed.Orders()
	fmt.Fprintf(c.out, "Orders in %q (%d):\n", c.feed.Filter(), len(orders))
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  No orders found.")
		return
	}
	for _, o := range orders {
		c.printOrder(o)
	}
}

func (c *Console) printOrder(o model.Order) {
	who := ""
	if o.Customer != nil {
		who = fmt.Sprintf(" %s %s (%s)", o.Customer.FirstName, o.Customer.LastName, o.Customer.Phone)
	}
	fmt.Fprintf(c.out, "  %s%s  R$ %.2f  %s  placed %s  ready by %s\n",
		o.ID, who, o.Amount, o.Payment,
		o.CreatedAt.Format("02/01/2006 15:04"),
		o.EstimatedReady().Format("15:04"))
	for _, item := range o.Items {
		fmt.Fprintf(c.out, "      %d - %s  R$ %.2f\n", item.Qty, item.Title, item.Subtotal)
	}
}

func (c *Console) HandleFilter(args []string) {
	if !c.guard() {
		return
	}
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Usage: filter <%s>\n", statusList())
		return
	}

	status, err := model.ParseStatus(args[0])
	if err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	if err := c.feed.SetFilter(status); err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	c.HandleOrders()
}

func (c *Console) HandleRefresh(ctx context.Context) {
	if !c.guard() {
		return
	}
	if err := c.feed.Refresh(ctx); err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	c.HandleOrders()
}

func (c *Console) HandleStatus(ctx context.Context, args []string) {
	if !c.guard() {
		return
	}
	if len(args) != 2 {
		fmt.Fprintf(c.out, "Usage: status <orderID> <%s>\n", statusList())
		return
	}

	status, err := model.ParseStatus(args[1])
	if err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}

	if _, err := c.client.UpdateOrderStatus(ctx, args[0], status); err != nil {
		fmt.Fprintln(c.out, "Error updating status:", err)
		return
	}

	c.audit.Record(ctx, audit.NewEntry(c.actor(), "status_update", args[0], status.String()))
	fmt.Fprintln(c.out, "Status updated!")
}

// HandleCounts shows the per-status totals. With a status argument it also
// switches the feed to that bucket, like clicking a count tab.
func (c *Console) HandleCounts(args []string) {
	if !c.guard() {
		return
	}

	counts := c.counts.Counts()
	for _, status := range model.Statuses() {
		fmt.Fprintf(c.out, "  %-11s %d\n", status, counts[status])
	}

	if len(args) == 1 {
		c.HandleFilter(args)
	}
}

func (c *Console) HandlePrint(ctx context.Context, args []string) {
	if !c.guard() {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: print <orderID>")
		return
	}

	if err := c.client.PrintOrder(ctx, args[0]); err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	c.audit.Record(ctx, audit.NewEntry(c.actor(), "print", args[0], ""))
	fmt.Fprintln(c.out, "Print queued.")
}

func (c *Console) HandleUnread(args []string) {
	if !c.guard() {
		return
	}
	if len(args) == 1 {
		fmt.Fprintf(c.out, "Unread for %s: %d\n", args[0], c.unread.Unread(args[0]))
		c.unread.Clear(args[0])
		return
	}
	fmt.Fprintf(c.out, "Unread chat messages: %d\n", c.unread.Total())
}

func (c *Console) HandleCategories(ctx context.Context) {
	if !c.guard() {
		return
	}
	categories, err := c.client.Categories(ctx)
	if err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	for _, cat := range categories {
		fmt.Fprintf(c.out, "  %s  %s\n", cat.ID, cat.Title)
	}
	fmt.Fprintf(c.out, "%d categories.\n", len(categories))
}

func (c *Console) HandleProducts(ctx context.Context) {
	if !c.guard() {
		return
	}
	products, err := c.client.Products(ctx)
	if err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	for _, p := range products {
		fmt.Fprintf(c.out, "  %s  %-30s R$ %.2f\n", p.ID, p.Title, p.Price)
	}
	fmt.Fprintf(c.out, "%d products.\n", len(products))
}

func (c *Console) HandleUsers(ctx context.Context) {
	if !c.guard() {
		return
	}
	users, err := c.client.Users(ctx)
	if err != nil {
		fmt.Fprintln(c.out, "Error:", err)
		return
	}
	for _, u := range users {
		fmt.Fprintf(c.out, "  %s  %s %s <%s> %s\n", u.ID, u.FirstName, u.LastName, u.Email, u.Role)
	}
	fmt.Fprintf(c.out, "%d users.\n", len(users))
}

func statusList() string {
	parts := make([]string, 0, len(model.Statuses()))
	for _, s := range model.Statuses() {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "|")
}
