package cli

import "github.com/spf13/cobra"

// ClientOptions holds flags shared by commands that connect to a relay.
type ClientOptions struct {
	*RootOptions
	URL  string
	Size int
}

func (o *ClientOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.URL, "url", "", "relay url (overrides config)")
	cmd.Flags().IntVar(&o.Size, "size", 0, "grid side length (overrides config)")
}

// resolve applies flags the user set on top of the loaded config.
func (o *ClientOptions) resolve(cmd *cobra.Command) (url string, size int, err error) {
	cfg := o.config()
	url, size = cfg.URL, cfg.Size
	if cmd.Flags().Changed("url") {
		url = o.URL
	}
	if cmd.Flags().Changed("size") {
		if o.Size <= 0 {
			return "", 0, NewExitError(ExitCommandError, "--size must be positive")
		}
		size = o.Size
	}
	return url, size, nil
}
