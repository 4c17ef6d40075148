package main

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zsprackett/display/internal/config"
	"github.com/zsprackett/display/internal/display"
)

var (
	pubURL    string
	pubKey    string
	pubID     string
	pubTitle  string
	pubWidth  float64
	pubLabels []string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push a pane update to a server",
}

var publishTextCmd = &cobra.Command{
	Use:   "text [message]",
	Short: "Publish text; read from stdin without an argument",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			body = string(data)
		}
		c := producer(loadConfig())
		id, err := c.Text(cmd.Context(), body, display.TextOptions{ID: pubID, Title: pubTitle})
		return printID(cmd, id, err)
	},
}

var publishImageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Publish a PNG, JPEG or GIF file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}
		title := pubTitle
		if title == "" {
			title = args[0]
		}
		c := producer(loadConfig())
		id, err := c.Image(cmd.Context(), img, display.ImageOptions{ID: pubID, Title: title, Width: pubWidth})
		return printID(cmd, id, err)
	},
}

var publishPlotCmd = &cobra.Command{
	Use:   "plot [file.csv]",
	Short: "Publish a CSV table as a line chart; read from stdin without a file",
	Long: `Each row is an x value followed by one value per series. A first
row of names is used as the labels unless --labels is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		labels, rows, err := display.ReadCSV(in)
		if err != nil {
			return err
		}
		if len(pubLabels) > 0 {
			labels = pubLabels
		}
		c := producer(loadConfig())
		id, err := c.Plot(cmd.Context(), rows, display.PlotOptions{ID: pubID, Title: pubTitle, Labels: labels})
		return printID(cmd, id, err)
	},
}

func init() {
	pf := publishCmd.PersistentFlags()
	pf.StringVarP(&pubURL, "url", "u", "", "Server URL")
	pf.StringVar(&pubKey, "key", "", "Producer key")
	pf.StringVar(&pubID, "id", "", "Pane id (a new one is generated when empty)")
	pf.StringVar(&pubTitle, "title", "", "Pane title")

	publishImageCmd.Flags().Float64Var(&pubWidth, "width", 0, "Display width in pixels")
	publishPlotCmd.Flags().StringSliceVar(&pubLabels, "labels", nil, "Series labels, x axis first")

	publishCmd.AddCommand(publishTextCmd, publishImageCmd, publishPlotCmd)
}

func producer(cfg config.Config) *display.Client {
	if pubURL != "" {
		cfg.Producer.URL = pubURL
	}
	if pubKey != "" {
		cfg.Producer.Key = pubKey
	}
	return display.New(display.Config{URL: cfg.Producer.URL, Key: cfg.Producer.Key})
}

func printID(cmd *cobra.Command, id string, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
