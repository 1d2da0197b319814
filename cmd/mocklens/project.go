package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/internal/validation"
	"github.com/spf13/cobra"
)

var (
	projectJSONOutput  bool
	projectDescription string
	screenImageRef     string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects and screens",
	Long:  "List, create and delete projects and add screens without running the server.",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project with its screens and results",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var projectAddScreenCmd = &cobra.Command{
	Use:   "add-screen <project-id> <name>",
	Short: "Add a screen to a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectAddScreen,
}

func init() {
	projectCmd.PersistentFlags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and MOCKLENS_DB_PATH)")
	projectCmd.PersistentFlags().BoolVar(&projectJSONOutput, "json", false,
		"Output in JSON format")

	projectCreateCmd.Flags().StringVar(&projectDescription, "description", "",
		"Human-readable description")
	projectAddScreenCmd.Flags().StringVar(&screenImageRef, "image-ref", "",
		"Reference of an uploaded image")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectAddScreenCmd)
}

func runProjectList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := db.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if projectJSONOutput {
		return printJSON(cmd.OutOrStdout(), types.ProjectList{Projects: projects})
	}

	if len(projects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tSCREENS\tCREATED\tDESCRIPTION")
	for _, p := range projects {
		desc := p.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			p.ID,
			p.Name,
			len(p.Screens),
			p.CreatedAt.Format("2006-01-02 15:04"),
			desc,
		)
	}
	w.Flush()

	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	np := types.NewProject{
		Name:        strings.TrimSpace(args[0]),
		Description: strings.TrimSpace(projectDescription),
	}
	if errs := validation.ValidateNewProject(np); len(errs) > 0 {
		return validationFailure(errs)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.CreateProject(ctx, np)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateProject) {
			return fmt.Errorf("project %q already exists", np.Name)
		}
		return err
	}

	if projectJSONOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created project %q (id: %s)\n", p.Name, p.ID)
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteProject(ctx, args[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %q not found", args[0])
		}
		return err
	}

	if projectJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":      args[0],
			"deleted": true,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
	return nil
}

func runProjectAddScreen(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ns := types.NewScreen{
		Name:     strings.TrimSpace(args[1]),
		ImageRef: strings.TrimSpace(screenImageRef),
	}
	if errs := validation.ValidateNewScreen(ns); len(errs) > 0 {
		return validationFailure(errs)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := db.AddScreen(ctx, args[0], ns)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %q not found", args[0])
		}
		return err
	}

	if projectJSONOutput {
		return printJSON(cmd.OutOrStdout(), s)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added screen %q to project %s (id: %s, position: %d)\n",
		s.Name, s.ProjectID, s.ID, s.Position)
	return nil
}
