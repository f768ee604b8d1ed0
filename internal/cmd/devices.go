package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Misakaka10086/IoT-Platform/common/database"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/output"
	"github.com/Misakaka10086/IoT-Platform/internal/repository"
)

// DeviceReader is the part of the store the devices commands read.
type DeviceReader interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, error)
	Summary(ctx context.Context) (models.StatusSummary, error)
	Close() error
}

// openDevices is swapped in tests.
var openDevices = func(ctx context.Context) (DeviceReader, error) {
	return repository.NewPostgresRepository(ctx, cfg.Database.Postgres.ConnString(), 2)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect persisted device status",
}

var devicesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List devices, most recently seen first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		return withDevices(cmd, func(ctx context.Context, store DeviceReader) error {
			devices, err := store.ListDevices(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if devices == nil {
				devices = []*models.Device{}
			}
			return render(cmd.OutOrStdout(), devices, func(w io.Writer) {
				if len(devices) == 0 {
					fmt.Fprintln(w, "No devices found")
					return
				}
				deviceTable(w, devices...)
			})
		})
	},
}

var devicesGetCmd = &cobra.Command{
	Use:   "get [device-id]",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevices(cmd, func(ctx context.Context, store DeviceReader) error {
			device, err := store.GetDevice(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get device %s: %w", args[0], err)
			}
			return render(cmd.OutOrStdout(), device, func(w io.Writer) {
				deviceTable(w, device)
			})
		})
	},
}

var devicesSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count online and offline devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDevices(cmd, func(ctx context.Context, store DeviceReader) error {
			sum, err := store.Summary(ctx)
			if err != nil {
				return fmt.Errorf("failed to summarize devices: %w", err)
			}
			return render(cmd.OutOrStdout(), sum, func(w io.Writer) {
				t := output.NewTable("TOTAL", "ONLINE", "OFFLINE")
				t.AddRow(strconv.Itoa(sum.Total), strconv.Itoa(sum.Online), strconv.Itoa(sum.Offline))
				t.Render(w)
			})
		})
	},
}

func withDevices(cmd *cobra.Command, fn func(context.Context, DeviceReader) error) error {
	ctx, cancel := database.QueryContext(cmd.Context())
	defer cancel()

	store, err := openDevices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store)
}

func deviceTable(w io.Writer, devices ...*models.Device) {
	t := output.NewTable("DEVICE", "STATUS", "LAST SEEN", "FIRMWARE", "CREATED")
	for _, d := range devices {
		lastSeen := "-"
		if !d.LastSeen.IsZero() {
			lastSeen = d.LastSeen.UTC().Format(time.RFC3339)
		}
		firmware := "-"
		if d.GitVersion != nil {
			firmware = *d.GitVersion
		}
		t.AddRow(d.DeviceID, string(d.Status), lastSeen, firmware, d.CreatedAt.UTC().Format("2006-01-02"))
	}
	t.Render(w)
}

func init() {
	devicesListCmd.Flags().Int("limit", 0, "maximum devices to list (0 lists all)")
	devicesListCmd.Flags().Int("offset", 0, "devices to skip")

	devicesCmd.AddCommand(devicesListCmd, devicesGetCmd, devicesSummaryCmd)
	rootCmd.AddCommand(devicesCmd)
}
