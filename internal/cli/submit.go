package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/fieldnode/internal/masking"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/node"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Title    string
	Street   string
	Tags     []string
	ParentID string
	MediaIDs []string
	Lat      float64
	Lon      float64
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a field observation",
		Long: `Mask and commit a new observation and queue it for sync.

Coordinates are jittered once before anything is stored. Street text is
reduced to a salted residency commitment and never persisted. Without
--lat/--lon the configured home location is used.

Example:
  fieldnode submit --title GRID_OUTAGE --street "Broad & Main St" --tag power
  fieldnode submit --title "Tree down" --lat 39.95 --lon -75.16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "observation title (required)")
	cmd.Flags().StringVar(&opts.Street, "street", "", "street address, committed and masked")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "id of a related local observation")
	cmd.Flags().StringSliceVar(&opts.MediaIDs, "media", nil, "attached media id (repeatable)")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude of the observation")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "longitude of the observation")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsRequiredTogether("lat", "lon")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *SubmitOptions) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts.Config, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sub := node.Submission{
		Title:    opts.Title,
		Street:   opts.Street,
		Tags:     opts.Tags,
		ParentID: opts.ParentID,
		MediaIDs: opts.MediaIDs,
	}
	if cmd.Flags().Changed("lat") {
		sub.Location = &masking.Point{Lat: opts.Lat, Lon: opts.Lon}
	}

	obs, err := a.node.SubmitObservation(ctx, sub)
	if err != nil {
		if model.IsValidationError(err) {
			return WrapExitError(ExitFailure, "observation rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to commit observation", err)
	}
	out := opts.formatter(cmd)
	out.VerboseLog("committed %s in bucket %s, sync scheduled", obs.ID, obs.Geohash)
	return out.Success(observationView{Observation: obs})
}
