package commands

import (
	"context"
	"os"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"metricwatch/internal/services"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Takes one reading and prints it as JSON",
	Long:  `Takes a single host reading and prints it to stdout. Network rates need two readings, so they are always zero here.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Sampler.Timeout)
		defer cancel()

		sampler := services.NewSampler(services.NewHostReader(cfg.Sampler.DiskPath), logger)
		sample, err := sampler.Sample(ctx)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode sample")
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	},
}
