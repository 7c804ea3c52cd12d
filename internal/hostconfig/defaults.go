package hostconfig

import (
	"strings"

	"pipeline-monitor/internal/config"
)

const (
	fallbackAPIBaseURL = "https://class.day/pipelines/api/v1"
	developAPIBaseURL  = "https://dev.class.day/pipelines/api/v1"
	legacyAPIBaseURL   = "http://classday.iptime.org:8000/api/v1"
)

func DefaultHosts() []HostConfig {
	return []HostConfig{
		{
			ID:                  "production-paid",
			Label:               "Production(paid)",
			APIBaseURL:          fallbackAPIBaseURL,
			FileDownloadBaseURL: fallbackAPIBaseURL,
			Enabled:             true,
			APIPath:             DefaultAPIPath,
			FileDownloadPath:    DefaultFileDownloadPath,
			Headers:             map[string]string{"X-Plan": "paid"},
		},
		{
			ID:                  "production-free",
			Label:               "Production(free)",
			APIBaseURL:          fallbackAPIBaseURL,
			FileDownloadBaseURL: fallbackAPIBaseURL,
			Enabled:             true,
			APIPath:             DefaultAPIPath,
			FileDownloadPath:    DefaultFileDownloadPath,
			Headers:             map[string]string{"X-Plan": "free"},
		},
		{
			ID:                  "develop",
			Label:               "Develop",
			APIBaseURL:          developAPIBaseURL,
			FileDownloadBaseURL: developAPIBaseURL,
			Enabled:             true,
			APIPath:             DefaultAPIPath,
			FileDownloadPath:    DefaultFileDownloadPath,
		},
		{
			ID:                  "legacy",
			Label:               "Legacy",
			APIBaseURL:          legacyAPIBaseURL,
			FileDownloadBaseURL: legacyAPIBaseURL,
			Enabled:             true,
			APIPath:             DefaultAPIPath,
			FileDownloadPath:    DefaultFileDownloadPath,
		},
	}
}

// Defaults builds the compiled-in runtime configuration, with top-level
// URLs overridden by env configuration when set.
func Defaults(conf *config.Config) RuntimeConfig {
	out := RuntimeConfig{
		APIBaseURL:          fallbackAPIBaseURL,
		FileDownloadBaseURL: fallbackAPIBaseURL,
		Hosts:               DefaultHosts(),
	}
	if conf == nil {
		return out
	}
	if v := strings.TrimSpace(conf.APIBaseURL); v != "" {
		out.APIBaseURL = v
	}
	if v := strings.TrimSpace(conf.EffectiveFileDownloadBaseURL()); v != "" {
		out.FileDownloadBaseURL = v
	}
	out.ConverterBaseURL = strings.TrimSpace(conf.ConverterBaseURL)
	return out
}
