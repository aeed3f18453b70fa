package config

// ApplyDefaults sets default values for any zero values in cfg.
// Cluster.Threshold stays nil when unset so that 0 remains a valid explicit threshold.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/matome/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.MaxChars == 0 {
		cfg.Embedding.MaxChars = 2000
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 1
	}
	if cfg.Embedding.OpenAI.APIKeyEnv == "" {
		cfg.Embedding.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.OpenAI.Model == "" {
		cfg.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.Feeds.TTLSeconds == 0 {
		cfg.Feeds.TTLSeconds = 180
	}
	if cfg.Feeds.TimeoutSeconds == 0 {
		cfg.Feeds.TimeoutSeconds = 20
	}
	if cfg.Feeds.UserAgent == "" {
		cfg.Feeds.UserAgent = "matome/1.0"
	}
	if cfg.Cluster.MaxTitleWords == 0 {
		cfg.Cluster.MaxTitleWords = 5
	}
	if cfg.Cluster.Centroid == "" {
		cfg.Cluster.Centroid = "mean"
	}
}
