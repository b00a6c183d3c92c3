package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/serializer"
)

// Flags hold parse state, so each command tree gets fresh instances.

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   string(serializer.FormatTable),
		Usage:   fmt.Sprintf("output format (%s)", strings.Join(serializer.SupportedFormats(), ", ")),
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}
}

// parseOutputFormat extracts and validates the output format from CLI flags.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	outFormat := serializer.Format(cmd.String("format"))
	if outFormat.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q, valid formats are: %s",
			outFormat, strings.Join(serializer.SupportedFormats(), ", "))
	}
	return outFormat, nil
}
