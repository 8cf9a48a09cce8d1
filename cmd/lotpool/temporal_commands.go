package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"

	"github.com/lotpool/lotpool/service/temporal"
)

// getTemporalClient dials Temporal using the global flags.
func getTemporalClient(c *cli.Context) (client.Client, error) {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", c.String("temporal-host"), err)
	}
	return temporalClient, nil
}

func createScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-schedule",
		Usage: "Create the reconcile schedule if it does not exist",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   30 * time.Second,
				Usage:   "How often the reconcile workflow runs",
			},
		},
		Action: func(c *cli.Context) error {
			scheduler, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("temporal-task-queue"),
				errLogger(),
			)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			interval := c.Duration("interval")
			if err := scheduler.EnsureReconcileSchedule(context.Background(), interval); err != nil {
				return fmt.Errorf("failed to create schedule: %w", err)
			}

			fmt.Printf("✓ Schedule %s ensured (every %v)\n", temporal.ReconcileScheduleID, interval)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Aliases: []string{"desc"},
		Usage:   "Describe the reconcile schedule",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, temporal.ReconcileScheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			fmt.Printf("Schedule ID:    %s\n", temporal.ReconcileScheduleID)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)
			if desc.Schedule.State.Note != "" {
				fmt.Printf("State Note:     %s\n", desc.Schedule.State.Note)
			}

			if action := desc.Schedule.Action; action != nil {
				if wa, ok := action.(*client.ScheduleWorkflowAction); ok {
					fmt.Printf("\nWorkflow:\n")
					fmt.Printf("  Workflow:     %v\n", wa.Workflow)
					fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
				}
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Printf("\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Printf("  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				fmt.Printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "pause-schedule",
		Usage: "Pause the reconcile schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Reason for pausing",
				Value: "paused via lotpool CLI",
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, temporal.ReconcileScheduleID)
			if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("✓ Schedule %s paused\n", temporal.ReconcileScheduleID)
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume-schedule",
		Usage: "Resume the reconcile schedule",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, temporal.ReconcileScheduleID)
			if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: "resumed via lotpool CLI"}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("✓ Schedule %s resumed\n", temporal.ReconcileScheduleID)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the reconcile schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				fmt.Fprintf(os.Stderr, "Delete schedule %s? Re-run with --yes to confirm.\n", temporal.ReconcileScheduleID)
				return nil
			}

			scheduler, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("temporal-task-queue"),
				errLogger(),
			)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			if err := scheduler.DeleteReconcileSchedule(context.Background()); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Schedule %s deleted\n", temporal.ReconcileScheduleID)
			return nil
		},
	}
}

func triggerScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Trigger one immediate run of the reconcile workflow",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, temporal.ReconcileScheduleID)
			if err := handle.Trigger(ctx, client.ScheduleTriggerOptions{}); err != nil {
				return fmt.Errorf("failed to trigger schedule: %w", err)
			}

			fmt.Printf("✓ Triggered %s\n", temporal.ReconcileScheduleID)
			return nil
		},
	}
}
