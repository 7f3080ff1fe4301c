package llms

// DialogueOptions are per request settings understood by every dialogue
// adapter. Zero values leave the provider default in place.
type DialogueOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

type DialogueOption func(*DialogueOptions)

func WithModel(model string) DialogueOption {
	return func(o *DialogueOptions) {
		o.Model = model
	}
}

func WithTemperature(temperature float64) DialogueOption {
	return func(o *DialogueOptions) {
		o.Temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) DialogueOption {
	return func(o *DialogueOptions) {
		o.MaxTokens = &maxTokens
	}
}

func ApplyOptions(base DialogueOptions, opts ...DialogueOption) DialogueOptions {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}
