package services

// LLMParameters holds the optional sampling parameters forwarded to providers that accept them. A nil
// field leaves the provider default in place.
type LLMParameters struct {
	Temperature      *float32       `yaml:"temperature"`
	TopP             *float32       `yaml:"topP"`
	Stop             []string       `yaml:"stop"`
	PresencePenalty  *float32       `yaml:"presencePenalty"`
	FrequencyPenalty *float32       `yaml:"frequencyPenalty"`
	Seed             *int           `yaml:"seed"`
	LogitBias        map[string]int `yaml:"logitBias"`
}
