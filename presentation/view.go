// Package presentation maps inference results to display-ready values.
package presentation

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fraudguard/inference"
)

// Precision is the number of decimals shown for probabilities.
const Precision = 4

// Chart categories, in fixed display order.
const (
	CategoryNotFraud = "Not Fraud"
	CategoryFraud    = "Fraud"
)

const (
	colorNotFraud = "#4CAF50"
	colorFraud    = "#F44336"
)

// Bar is one column of the probability chart.
type Bar struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Text     string  `json:"text"`
	Color    string  `json:"color"`
}

// Chart is a two-bar categorical chart on a fixed [0,1] axis.
type Chart struct {
	YLabel string  `json:"y_label"`
	YMin   float64 `json:"y_min"`
	YMax   float64 `json:"y_max"`
	Bars   []Bar   `json:"bars"`
}

// View is everything a surface needs to show one result.
type View struct {
	Label      string `json:"label"`
	Headline   string `json:"headline"`
	Fraudulent bool   `json:"fraudulent"`
	NotFraud   string `json:"not_fraud"`
	Fraud      string `json:"fraud"`
	Summary    string `json:"summary"`
	Amount     string `json:"amount"`
	Chart      Chart  `json:"chart"`
}

// Formatter renders numbers for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter parses a BCP 47 locale such as "en" or "de-CH".
func NewFormatter(locale string) (*Formatter, error) {
	if locale == "" {
		locale = "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("presentation: invalid locale %q: %w", locale, err)
	}
	return &Formatter{tag: tag, printer: message.NewPrinter(tag)}, nil
}

var defaultFormatter = &Formatter{tag: language.English, printer: message.NewPrinter(language.English)}

// Present formats a result with the English locale.
func Present(result inference.PredictionResult) View {
	return defaultFormatter.Present(result)
}

// Locale returns the formatter's language tag.
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Probability formats p with Precision decimals.
func (f *Formatter) Probability(p float64) string {
	return f.printer.Sprintf("%.4f", p)
}

// Money formats an amount with two decimals and locale grouping.
func (f *Formatter) Money(amount float64) string {
	return f.printer.Sprintf("%.2f", amount)
}

// Present maps a result to its view. It is pure.
func (f *Formatter) Present(result inference.PredictionResult) View {
	probs := result.Probabilities
	notFraud := f.Probability(probs.NotFraud)
	fraud := f.Probability(probs.Fraud)

	view := View{
		Label:      result.Verdict.String(),
		Headline:   "LEGITIMATE TRANSACTION",
		Fraudulent: result.Verdict == inference.Fraudulent,
		NotFraud:   notFraud,
		Fraud:      fraud,
		Summary:    fmt.Sprintf("%s: %s | %s: %s", CategoryNotFraud, notFraud, CategoryFraud, fraud),
		Amount:     f.Money(result.Features.Amount()),
		Chart: Chart{
			YLabel: "Probability",
			YMin:   0,
			YMax:   1,
			Bars: []Bar{
				{Category: CategoryNotFraud, Value: probs.NotFraud, Text: notFraud, Color: colorNotFraud},
				{Category: CategoryFraud, Value: probs.Fraud, Text: fraud, Color: colorFraud},
			},
		},
	}
	if view.Fraudulent {
		view.Headline = "FRAUDULENT TRANSACTION DETECTED!"
	}
	return view
}
