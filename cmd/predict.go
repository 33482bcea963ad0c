package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fraudguard/inference"
	"fraudguard/ml"
	"fraudguard/presentation"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score one transaction and print the verdict",
	Long: "Score one transaction. --preset loads a canned sample; any of " +
		"--v1..--v5 and --amount given explicitly override it. Unset fields are 0.",
	Args: cobra.NoArgs,
	RunE: runPredict,
}

var featureFlags = [ml.FeatureCount]string{"v1", "v2", "v3", "v4", "v5", "amount"}

func init() {
	predictCmd.Flags().String("preset", "", "Start from a preset: fraud, normal or clear")
	for i, name := range featureFlags {
		predictCmd.Flags().Float64(name, 0, "Value of "+ml.FeatureNames()[i])
	}
	predictCmd.Flags().Bool("json", false, "Print the result as JSON")
	predictCmd.Flags().Int("width", 40, "Width of the text chart")
}

func runPredict(cmd *cobra.Command, args []string) error {
	features, err := featuresFromFlags(cmd)
	if err != nil {
		return err
	}

	d, err := bootstrap(configPath(cmd))
	if err != nil {
		return err
	}
	defer d.close()

	result, err := d.facade.RunFeatures(cmd.Context(), features)
	if err != nil {
		return fmt.Errorf("error making prediction: %w", err)
	}

	formatter, err := presentation.NewFormatter(d.cfg.Presentation.Locale)
	if err != nil {
		return err
	}
	view := formatter.Present(result)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Result inference.PredictionResult `json:"result"`
			View   presentation.View          `json:"view"`
		}{result, view})
	}
	width, _ := cmd.Flags().GetInt("width")
	printView(out, view, width)
	return nil
}

func featuresFromFlags(cmd *cobra.Command) (ml.TransactionFeatures, error) {
	var v ml.FeatureVector
	if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
		f, err := inference.LookupPreset(inference.Preset(preset))
		if err != nil {
			return ml.TransactionFeatures{}, err
		}
		v = f.Vector()
	}
	for i, name := range featureFlags {
		if !cmd.Flags().Changed(name) {
			continue
		}
		x, err := cmd.Flags().GetFloat64(name)
		if err != nil {
			return ml.TransactionFeatures{}, err
		}
		v[i] = x
	}
	return v.Features(), nil
}

func printView(w io.Writer, view presentation.View, width int) {
	fmt.Fprintln(w, "Prediction Results")
	fmt.Fprintln(w, view.Headline)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Prediction Probabilities")
	fmt.Fprintln(w, view.Summary)
	fmt.Fprint(w, presentation.RenderText(view.Chart, width))
}
