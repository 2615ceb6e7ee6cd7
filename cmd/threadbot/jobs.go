package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobsOwner string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled threads",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scheduled threads of an owner",
	RunE:  runJobsList,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a scheduled thread and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsOwner, "owner", "", "Owner id given when scheduling")
	_ = jobsListCmd.MarkFlagRequired("owner")

	jobsCmd.AddCommand(jobsListCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.Workflow.ListJobs(ctx, jobsOwner)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scheduled threads.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCHEDULED (UTC)\tCHUNKS\tSTATUS\tATTEMPTS\tLAST ERROR")
	for _, job := range jobs {
		chunks, err := a.Workflow.JobChunks(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("list chunks: %w", err)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\n",
			job.ID,
			job.ScheduledAt.UTC().Format("2006-01-02 15:04"),
			len(chunks),
			job.Status,
			job.Attempts,
			job.LastError,
		)
	}
	return w.Flush()
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id %q", args[0])
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Workflow.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %d\n", id)
	return nil
}
