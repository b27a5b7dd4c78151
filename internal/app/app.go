// Package app holds the wiring shared by the server and the local runner.
package app

import (
	"github.com/vnmchuo/contentgen/config"
	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/media"
	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/provider/gemini"
	"github.com/vnmchuo/contentgen/internal/provider/openai"
	"github.com/vnmchuo/contentgen/internal/provider/replicate"
)

// Factories builds the vendor clients with the configured timeouts.
func Factories(cfg *config.Config) generator.Factories {
	return generator.Factories{
		provider.VendorOpenAI: func(key string) provider.Provider {
			return openai.New(key, openai.WithTimeout(cfg.TextTimeout))
		},
		provider.VendorGemini: func(key string) provider.Provider {
			return gemini.New(key, gemini.WithTimeout(cfg.TextTimeout))
		},
		provider.VendorReplicate: func(key string) provider.Provider {
			return replicate.New(key,
				replicate.WithTimeouts(cfg.ImageSubmitTimeout, cfg.PollRequestTimeout, cfg.DownloadTimeout),
				replicate.WithPolling(cfg.PollInterval, cfg.PollDeadline),
			)
		},
	}
}

// Settings projects the configuration onto the generator settings.
func Settings(cfg *config.Config) generator.Settings {
	return generator.Settings{
		OpenAIKey:         cfg.OpenAIAPIKey,
		GeminiKey:         cfg.GeminiAPIKey,
		ReplicateKey:      cfg.ReplicateAPIKey,
		DefaultImageModel: cfg.DefaultImageModel,
		SiteName:          cfg.SiteName,
		SiteDescription:   cfg.SiteDescription,
	}
}

// Media returns S3 storage when a bucket is configured and local storage
// under MEDIA_DIR otherwise. The local directory must be served at
// MEDIA_BASE_URL by the caller.
func Media(cfg *config.Config) media.Storage {
	if cfg.S3Bucket != "" {
		s3cfg := media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		}
		return media.NewS3Storage(media.Connect(s3cfg), s3cfg)
	}
	return media.NewFSStorage(cfg.MediaDir, cfg.MediaBaseURL)
}
