/*
Package cli holds helpers shared by the dmkit subcommands: output
formatting, exit-code mapping and signal handling.

	format, err := cli.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)

Results that implement TextRenderer control their own text layout; all
others are printed with %v.
*/
package cli
