package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidCloudLink = errors.New("invalid cloud link")

var supportedCloudDomains = []string{
	"disk.yandex.ru",
	"yadi.sk",
	"cloud.mail.ru",
	"drive.google.com",
	"docs.google.com",
	"dropbox.com",
	"onedrive.live.com",
	"sharepoint.com",
	"mega.nz",
}

// IsSupportedCloudHost matches a supported domain or any of its subdomains.
func IsSupportedCloudHost(hostname string) bool {
	host := strings.ToLower(hostname)
	for _, domain := range supportedCloudDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// NormalizeCloudLink validates a link to a cloud storage folder and returns
// it in canonical form.
func NormalizeCloudLink(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: cloud link is required", ErrInvalidCloudLink)
	}

	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: cloud link is not a valid URL", ErrInvalidCloudLink)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: cloud link must use http or https", ErrInvalidCloudLink)
	}
	if !IsSupportedCloudHost(parsed.Hostname()) {
		return "", fmt.Errorf("%w: cloud link must point to a supported storage provider", ErrInvalidCloudLink)
	}

	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}
