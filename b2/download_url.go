package b2

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/network"
)

// DownloadAuthorization ...
type DownloadAuthorization = network.DownloadAuthorization

// GetDownloadAuthorization issues a token for downloading files of a private
// bucket whose names start with prefix.
func (c *Client) GetDownloadAuthorization(ctx context.Context, bucket BucketRef, prefix string, valid time.Duration) (DownloadAuthorization, error) {
	bucketID, err := c.bucketID(ctx, bucket)
	if err != nil {
		return DownloadAuthorization{}, err
	}
	return c.api.GetDownloadAuthorization(ctx, bucketID, prefix, valid)
}

// DownloadURL returns the public URL of a file addressed by name. With
// withToken the URL carries a download authorization valid for valid, scoped
// to the directory of filePath.
func (c *Client) DownloadURL(ctx context.Context, bucket BucketRef, filePath string, withToken bool, valid time.Duration) (string, error) {
	filePath = strings.TrimLeft(filePath, "/")
	if filePath == "" {
		return "", model.NewValidationError("FilePath", "is required")
	}

	bucketName, err := c.bucketName(ctx, bucket)
	if err != nil {
		return "", err
	}

	state, err := c.session.Get(ctx)
	if err != nil {
		return "", err
	}
	downloadURL := network.FileByNameURL(state, bucketName, filePath)

	if withToken {
		prefix := path.Dir(filePath)
		if prefix == "." {
			prefix = ""
		} else {
			prefix += "/"
		}

		authorization, err := c.GetDownloadAuthorization(ctx, bucket, prefix, valid)
		if err != nil {
			return "", err
		}
		downloadURL += "?Authorization=" + url.QueryEscape(authorization.Token)
	}

	return c.applyDomainAliases(downloadURL), nil
}

// RedirectTarget locates a file version on the download host, split the way
// reverse proxies expect it for an internal redirect (X-Accel-Redirect).
type RedirectTarget struct {
	URL   string
	Host  string
	Query string
}

// DownloadRedirect returns where a file version can be fetched by ID.
func (c *Client) DownloadRedirect(ctx context.Context, fileID string) (RedirectTarget, error) {
	if fileID == "" {
		return RedirectTarget{}, model.NewValidationError("FileID", "is required")
	}

	state, err := c.session.Get(ctx)
	if err != nil {
		return RedirectTarget{}, err
	}

	rawURL := c.applyDomainAliases(network.FileByIDURL(state, fileID))
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return RedirectTarget{}, fmt.Errorf("parse download url: %w", err)
	}
	return RedirectTarget{URL: rawURL, Host: parsed.Host, Query: parsed.RawQuery}, nil
}

// applyDomainAliases replaces the configured domains, preferring the longest
// match at every position.
func (c *Client) applyDomainAliases(rawURL string) string {
	if len(c.config.DomainAliases) == 0 {
		return rawURL
	}

	domains := make([]string, 0, len(c.config.DomainAliases))
	for domain := range c.config.DomainAliases {
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	sort.Slice(domains, func(i, j int) bool {
		if len(domains[i]) != len(domains[j]) {
			return len(domains[i]) > len(domains[j])
		}
		return domains[i] < domains[j]
	})

	pairs := make([]string, 0, 2*len(domains))
	for _, domain := range domains {
		pairs = append(pairs, domain, c.config.DomainAliases[domain])
	}
	return strings.NewReplacer(pairs...).Replace(rawURL)
}
