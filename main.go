// Command todo manages tasks against a taskd server. Every change is applied
// to the local forest first and rolled back if the server rejects it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"todo-sync/app/config"
	"todo-sync/app/logging"
	"todo-sync/app/models"
	"todo-sync/app/mutator"
	"todo-sync/app/selection"
	"todo-sync/app/services"
	"todo-sync/app/store"
	"todo-sync/app/tree"
	"todo-sync/app/views"
)

// session is the engine a command runs against.
type session struct {
	logger   *log.Logger
	mutator  *mutator.Mutator
	selector *selection.Coordinator
	out      io.Writer
}

var (
	configPath string
	sess       *session
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "todo",
		Short:         "Manage tasks and subtasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg, services.NewClient(cfg.Remote.BaseURL,
				services.WithToken(cfg.Remote.Token),
				services.WithUserID(cfg.User.ID),
				services.WithTimeout(cfg.Remote.Timeout),
			), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			sess = s
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./todo.yaml)")

	root.AddCommand(
		newListCmd(),
		newAddCmd(),
		newEditCmd(),
		newDoneCmd(),
		newUndoCmd(),
		newRmCmd(),
		newDeadlineCmd(),
		newPriorityCmd(),
	)
	return root
}

// openSession wires the engine to remote and loads every task.
func openSession(ctx context.Context, cfg *config.Config, remote services.RemoteTaskService, out io.Writer) (*session, error) {
	logger, err := logging.New(cfg.Log, os.Stderr, "todo")
	if err != nil {
		return nil, err
	}
	mode, err := mutator.ParseRollbackMode(cfg.Engine.Rollback)
	if err != nil {
		return nil, err
	}
	m := mutator.New(store.New(store.State{}), remote,
		mutator.WithLogger(logger),
		mutator.WithRollback(mode),
	)
	if err := m.Load(ctx, models.Filter{IncludeDone: true}); err != nil {
		return nil, err
	}
	return &session{
		logger:  logger,
		mutator: m,
		selector: selection.New(m,
			selection.WithLogger(logger),
			selection.WithConcurrency(cfg.Engine.BulkConcurrency),
		),
		out: out,
	}, nil
}

func (s *session) forest() tree.Forest {
	return s.mutator.Store().State().Forest
}

// resolve maps an id or unique id prefix to a ref.
func (s *session) resolve(arg string) (tree.Ref, error) {
	f := s.forest()
	if _, ok := f.Get(tree.Confirmed(arg)); ok {
		return tree.Confirmed(arg), nil
	}
	var match []tree.Ref
	for _, r := range allRefs(f) {
		if strings.HasPrefix(r.ID(), arg) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return tree.Ref{}, fmt.Errorf("no task matches %q", arg)
	case 1:
		return match[0], nil
	}
	return tree.Ref{}, fmt.Errorf("%q is ambiguous (%d tasks)", arg, len(match))
}

func (s *session) resolveAll(args []string) ([]tree.Ref, error) {
	refs := make([]tree.Ref, 0, len(args))
	for _, a := range args {
		r, err := s.resolve(a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// selectRefs puts exactly refs into the selection.
func (s *session) selectRefs(refs []tree.Ref) {
	s.selector.SetView("cli", refs)
	s.selector.Enter()
	s.selector.ToggleSelectAll()
}

func allRefs(f tree.Forest) []tree.Ref {
	var out []tree.Ref
	for _, r := range f.Roots() {
		out = append(out, r)
		out = append(out, f.Children(r)...)
	}
	return out
}

func newListCmd() *cobra.Command {
	var (
		mode    string
		project string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := views.ParseMode(mode)
			if err != nil {
				return err
			}
			if m == views.ModeProject && project == "" {
				return errors.New("--project is required for the project view")
			}
			items := views.Derive(sess.forest(), views.Query{
				Mode:      m,
				ProjectID: project,
				ShowAll:   all,
				Now:       time.Now(),
			})
			fmt.Fprint(sess.out, renderList(items, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(views.ModeInbox), "view: inbox, today, overdue, completed or project")
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id for the project view")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include done tasks")
	return cmd
}

func newAddCmd() *cobra.Command {
	var (
		in                 models.CreateInput
		parent, proj, sect string
		deadline, at       string
	)
	cmd := &cobra.Command{
		Use:   "add TITLE...",
		Short: "Add a task or subtask",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = strings.Join(args, " ")
			if parent != "" {
				r, err := sess.resolve(parent)
				if err != nil {
					return err
				}
				id := r.ID()
				in.ParentID = &id
			}
			if proj != "" {
				in.ProjectID = &proj
			}
			if sect != "" {
				in.SectionID = &sect
			}
			d, c, err := parseDeadline(deadline, at)
			if err != nil {
				return err
			}
			in.Deadline, in.ReminderAt = d, c

			ref, err := sess.mutator.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(sess.out, "added %s\n", shortID(ref.ID()))
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent task id")
	cmd.Flags().StringVar(&proj, "project", "", "project id")
	cmd.Flags().StringVar(&sect, "section", "", "section id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD, today or tomorrow)")
	cmd.Flags().StringVar(&at, "time", "", "reminder time (HH:MM), requires --deadline")
	cmd.Flags().IntVar(&in.Priority, "priority", models.DefaultPriority, "priority 1 (urgent) to 4")
	cmd.Flags().StringVar(&in.Comment, "comment", "", "comment")
	return cmd
}

func newEditCmd() *cobra.Command {
	var (
		title, comment, proj, sect string
		priority                   int
		clearProject, clearDate    bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a task's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sess.resolve(args[0])
			if err != nil {
				return err
			}
			var patch models.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("comment") {
				patch.Comment = &comment
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("project") {
				patch.ProjectID = models.Value(proj)
			}
			if clearProject {
				patch.ProjectID = models.Null[string]()
			}
			if flags.Changed("section") {
				patch.SectionID = models.Value(sect)
			}
			if clearDate {
				patch.Deadline = models.Null[models.Date]()
				patch.ReminderAt = models.Null[models.Clock]()
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change")
			}
			if err := sess.mutator.Update(cmd.Context(), ref, patch); err != nil {
				return err
			}
			fmt.Fprintf(sess.out, "updated %s\n", shortID(ref.ID()))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&comment, "comment", "", "new comment")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority")
	cmd.Flags().StringVar(&proj, "project", "", "move to project")
	cmd.Flags().BoolVar(&clearProject, "inbox", false, "move back to the inbox")
	cmd.Flags().StringVar(&sect, "section", "", "move to section")
	cmd.Flags().BoolVar(&clearDate, "clear-deadline", false, "remove deadline and reminder")
	return cmd
}

func newDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done ID...",
		Short: "Complete tasks (open subtasks follow their parent)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := sess.resolveAll(args)
			if err != nil {
				return err
			}
			sess.selectRefs(refs)
			return report(sess.out, "completed", len(refs), sess.selector.BulkComplete(cmd.Context()))
		},
	}
}

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo ID...",
		Short: "Reopen tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := sess.resolveAll(args)
			if err != nil {
				return err
			}
			var errs []error
			for _, r := range refs {
				if err := sess.mutator.UpdateDone(cmd.Context(), r, false); err != nil {
					errs = append(errs, err)
				}
			}
			return report(sess.out, "reopened", len(refs), errors.Join(errs...))
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete tasks with their subtasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := sess.resolveAll(args)
			if err != nil {
				return err
			}
			sess.selectRefs(refs)
			return report(sess.out, "deleted", len(refs), sess.selector.BulkDelete(cmd.Context()))
		},
	}
}

func newDeadlineCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "deadline DATE ID...",
		Short: "Move tasks to a deadline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, c, err := parseDeadline(args[0], at)
			if err != nil {
				return err
			}
			refs, err := sess.resolveAll(args[1:])
			if err != nil {
				return err
			}
			sess.selectRefs(refs)
			return report(sess.out, "rescheduled", len(refs), sess.selector.BulkUpdateDeadline(cmd.Context(), *d, c))
		},
	}
	cmd.Flags().StringVar(&at, "time", "", "reminder time (HH:MM); omitted means end of day")
	return cmd
}

func newPriorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority N ID...",
		Short: "Set the priority of tasks",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("priority: %w", err)
			}
			refs, err := sess.resolveAll(args[1:])
			if err != nil {
				return err
			}
			sess.selectRefs(refs)
			return report(sess.out, "reprioritized", len(refs), sess.selector.BulkSetPriority(cmd.Context(), p))
		},
	}
}

// parseDeadline reads a date argument and an optional time. An empty date
// yields nil; a time without a date is an error.
func parseDeadline(date, at string) (*models.Date, *models.Clock, error) {
	if date == "" {
		if at != "" {
			return nil, nil, errors.New("--time requires a deadline")
		}
		return nil, nil, nil
	}
	var d models.Date
	switch date {
	case "today":
		d = models.DateOf(time.Now())
	case "tomorrow":
		d = models.DateOf(time.Now().AddDate(0, 0, 1))
	default:
		var err error
		if d, err = models.ParseDate(date); err != nil {
			return nil, nil, err
		}
	}
	if at == "" {
		return &d, nil, nil
	}
	c, err := models.ParseClock(at)
	if err != nil {
		return nil, nil, err
	}
	return &d, &c, nil
}

func report(w io.Writer, verb string, n int, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d task(s)\n", verb, n)
	return nil
}
