package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sporttracker/sporttracker/internal/activity"
	"github.com/sporttracker/sporttracker/internal/auth"
	"github.com/sporttracker/sporttracker/internal/config"
	"github.com/sporttracker/sporttracker/internal/database"
	"github.com/sporttracker/sporttracker/internal/localstore"
	"github.com/sporttracker/sporttracker/internal/logging"
	"github.com/sporttracker/sporttracker/internal/remote"
)

// clientApp bundles the device-side collaborators behind the CLI commands.
type clientApp struct {
	cfg     config.AppConfig
	repo    *activity.Repository
	local   *localstore.Store
	session *auth.Session
	logger  *zap.Logger
	close   func()
}

func newClientApp() (*clientApp, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	local, err := localstore.New(db, logger)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	session, err := auth.NewSession(auth.SessionConfig{
		BaseURL: appConfig.RemoteURL,
		Logger:  logger,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	remoteClient, err := remote.NewClient(remote.ClientConfig{
		BaseURL: appConfig.RemoteURL,
		Tokens:  session,
		Logger:  logger,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	repo, err := activity.NewRepository(activity.RepositoryConfig{
		Local:    local,
		Remote:   remoteClient,
		Identity: session,
		Logger:   logger,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &clientApp{
		cfg:     appConfig,
		repo:    repo,
		local:   local,
		session: session,
		logger:  logger,
		close: func() {
			logger.Sync() //nolint:errcheck
			sqlDB.Close()
		},
	}, nil
}

func newAddCommand() *cobra.Command {
	var (
		name     string
		location string
		duration int
		typeName string
		isRemote bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.close()

			activityType, err := activity.ParseType(typeName)
			if err != nil {
				return err
			}
			if duration == 0 {
				duration = activityType.Descriptor().DefaultDuration
			}

			storage := activity.StorageLocal
			if isRemote {
				storage = activity.StorageRemote
			}

			record := activity.Activity{
				Name:            name,
				Location:        location,
				DurationMinutes: duration,
				Type:            activityType,
				StorageType:     storage,
			}
			if err := activity.Validate(record); err != nil {
				return err
			}

			if err := app.repo.SaveActivity(cmd.Context(), record); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s (%s, %d min)\n",
				record.Name, activityType.Descriptor().Label, record.DurationMinutes)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Activity name")
	cmd.Flags().StringVar(&location, "location", "", "Where the activity took place")
	cmd.Flags().IntVar(&duration, "duration", 0, "Duration in minutes (defaults per activity type)")
	cmd.Flags().StringVar(&typeName, "type", string(activity.TypeOther), "Activity type (running, cycling, ...)")
	cmd.Flags().BoolVar(&isRemote, "remote", false, "Sync this activity to the cloud")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("location"))

	return cmd
}

func newListCommand() *cobra.Command {
	var storageFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded activities, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.close()

			var records []activity.Activity
			switch strings.ToLower(storageFilter) {
			case "", "all":
				records, err = app.repo.GetActivities(cmd.Context())
			case "local":
				records, err = app.repo.GetActivitiesByStorage(cmd.Context(), activity.StorageLocal)
			case "remote":
				records, err = app.repo.GetActivitiesByStorage(cmd.Context(), activity.StorageRemote)
			default:
				return fmt.Errorf("unknown storage filter %q (want local, remote or all)", storageFilter)
			}
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no activities recorded")
				return nil
			}
			for _, record := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-20s %3d min  %-8s %s\n",
					record.ID,
					record.Type.Descriptor().Label,
					record.Name,
					record.DurationMinutes,
					record.SyncStatus,
					record.Location)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storageFilter, "storage", "all", "Filter by storage intent (local, remote, all)")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.repo.DeleteActivity(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass against the cloud backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.close()

			if !watch {
				return runSyncPass(cmd.Context(), app)
			}

			scheduler := gocron.NewScheduler(time.UTC)
			_, err = scheduler.Every(app.cfg.SyncInterval).Do(func() {
				if err := runSyncPass(cmd.Context(), app); err != nil {
					app.logger.Warn("scheduled sync pass failed", zap.Error(err))
				}
			})
			if err != nil {
				return err
			}
			scheduler.StartAsync()
			defer scheduler.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "syncing every %s, ctrl-c to stop\n", app.cfg.SyncInterval)
			signalCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()
			<-signalCtx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and sync periodically")
	return cmd
}

func runSyncPass(ctx context.Context, app *clientApp) error {
	if err := app.repo.SyncActivities(ctx); err != nil {
		return err
	}
	app.logger.Info("sync pass complete")
	return nil
}

func newSignOutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and wipe the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.local.DeleteAll(cmd.Context()); err != nil {
				return err
			}
			app.session.SignOut()
			fmt.Fprintln(cmd.OutOrStdout(), "signed out, local data cleared")
			return nil
		},
	}
}
