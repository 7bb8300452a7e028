package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/logging"
	"github.com/dastankg/orimi-merchen/internal/provenance"
)

func newVerifyCommand() *cobra.Command {
	photo, envErr := config.PhotoFromEnv()
	var verbose bool

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Run the photo freshness check on a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil && !cmd.Flags().Changed("max-age") {
				return envErr
			}
			loc, err := time.LoadLocation(photo.Timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}
			log := zap.NewNop()
			if verbose {
				if log, err = logging.New("debug", true); err != nil {
					return err
				}
			}

			// Normalization consumes its input, so work on a copy.
			src := args[0]
			work, err := copyToTemp(src)
			if err != nil {
				return err
			}
			defer os.RemoveAll(filepath.Dir(work))

			v := provenance.NewVerifier(provenance.Options{
				Location:  loc,
				MaxAge:    photo.MaxAge,
				Container: provenance.ExifToolReader{Binary: photo.ExifToolBinary},
				Converter: provenance.NewNormalizer(log,
					provenance.HEICDecoder{},
					provenance.MagickConverter{Binary: photo.ConvertBinary}),
				Logger: log,
			})
			now := time.Now()
			res := v.Verify(cmd.Context(), work, filepath.Ext(src))

			fmt.Fprintln(cmd.OutOrStdout(), renderResult(src, res, now))
			if !res.Accepted {
				return fmt.Errorf("photo rejected: %s", res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&photo.Timezone, "timezone", photo.Timezone, "Timezone of the camera clock")
	cmd.Flags().DurationVar(&photo.MaxAge, "max-age", photo.MaxAge, "Maximum age of an accepted photo")
	cmd.Flags().StringVar(&photo.ExifToolBinary, "exiftool", photo.ExifToolBinary, "exiftool binary")
	cmd.Flags().StringVar(&photo.ConvertBinary, "convert", photo.ConvertBinary, "ImageMagick convert binary")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log verification steps")

	return cmd
}

func renderResult(src string, res provenance.Result, now time.Time) string {
	rows := [][]string{
		{"File", src},
		{"Format", provenance.Classify(filepath.Ext(src)).String()},
		{"Accepted", fmt.Sprintf("%t", res.Accepted)},
	}
	if !res.CaptureTime.IsZero() {
		rows = append(rows,
			[]string{"Captured", res.CaptureTime.Format(time.RFC3339)},
			[]string{"Age", res.Age(now).Round(time.Second).String()})
	}
	if res.Reason != "" {
		rows = append(rows, []string{"Reason", string(res.Reason)})
	}
	if res.Err != nil {
		rows = append(rows, []string{"Error", res.Err.Error()})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}

func copyToTemp(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dir, err := os.MkdirTemp("", "orimi-verify-")
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dst, nil
}
