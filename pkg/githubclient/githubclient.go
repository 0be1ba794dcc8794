// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package githubclient is a wrapper around the GitHub App for common
// operations: building authenticated REST and GraphQL clients from a
// single credential source, paging through open issues/PRs and their
// comments, and classifying an item as an issue or a pull request.
package githubclient

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/google/go-github/v61/github"
	"github.com/sethvargo/go-gcpkms/pkg/gcpkms"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/abcxyz/pkg/githubauth"
)

// Client is a wrapper around a GitHub HTTP client and an authenticated
// GitHub App, exposing both a REST client and a GraphQL client built from
// the same token source.
type Client struct {
	config *Config
	app    *githubauth.App
	rest   *github.Client
	v4     *githubv4.Client
}

// New creates a new [Client] from the given config. The private key signer
// is resolved in priority order: KMS, then Secret Manager, then a
// plaintext key.
func New(ctx context.Context, c *Config) (*Client, error) {
	signer, err := resolveSigner(ctx, c)
	if err != nil {
		return nil, err
	}

	var appOpts []githubauth.Option
	if v := c.GitHubEnterpriseServerURL; v != "" {
		appOpts = append(appOpts, githubauth.WithBaseURL(v+"/api/v3"))
	}
	app, err := githubauth.NewApp(c.GitHubAppID, signer, appOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create github app: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, app.OAuthAppTokenSource())

	restClient := github.NewClient(httpClient)
	if v := c.GitHubEnterpriseServerURL; v != "" {
		var err error
		restClient, err = restClient.WithEnterpriseURLs(v, v)
		if err != nil {
			return nil, fmt.Errorf("failed to create enterprise client: %w", err)
		}
	}

	v4Client := githubv4.NewClient(httpClient)
	if v := c.GitHubEnterpriseServerURL; v != "" {
		v4Client = githubv4.NewEnterpriseClient(v+"/api/graphql", httpClient)
	}

	return &Client{
		config: c,
		app:    app,
		rest:   restClient,
		v4:     v4Client,
	}, nil
}

// resolveSigner picks the configured private key source. KMS takes
// priority since it never exposes key material to this process; Secret
// Manager is checked next; a plaintext key is the fallback used in local
// development.
func resolveSigner(ctx context.Context, c *Config) (crypto.Signer, error) {
	switch {
	case c.GitHubPrivateKeyKMSKeyID != "":
		client, err := kms.NewKeyManagementClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create new key management client: %w", err)
		}

		signer, err := gcpkms.NewSigner(ctx, client, c.GitHubPrivateKeyKMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("failed to create app signer: %w", err)
		}
		return signer, nil
	case c.GitHubPrivateKeySecretID != "":
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
		}
		defer client.Close()

		req := &secretmanagerpb.AccessSecretVersionRequest{
			Name: c.GitHubPrivateKeySecretID,
		}
		result, err := client.AccessSecretVersion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to access secret version: %w", err)
		}

		signer, err := githubauth.NewPrivateKeySigner(string(result.GetPayload().GetData()))
		if err != nil {
			return nil, fmt.Errorf("failed to create private key signer: %w", err)
		}
		return signer, nil
	case c.GitHubPrivateKey != "":
		signer, err := githubauth.NewPrivateKeySigner(c.GitHubPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create private key signer: %w", err)
		}
		return signer, nil
	default:
		return nil, errors.New("no github app private key source configured")
	}
}

// App returns the underlying [githubauth.App].
func (c *Client) App() *githubauth.App {
	return c.app
}

// GitHubClientFromTokenSource creates a new GitHub client from the given
// token source. It inherits any configuration from the GitHub config (like
// enterprise URL).
func (c *Client) GitHubClientFromTokenSource(ctx context.Context, ts oauth2.TokenSource) (*github.Client, error) {
	githubClient := github.NewClient(oauth2.NewClient(ctx, ts))
	if v := c.config.GitHubEnterpriseServerURL; v != "" {
		var err error
		githubClient, err = githubClient.WithEnterpriseURLs(v, v)
		if err != nil {
			return nil, fmt.Errorf("failed to create enterprise client: %w", err)
		}
	}
	return githubClient, nil
}

// IsPullRequest classifies a tracked number as a pull request by probing
// the PR-view REST endpoint: a 404 response means the number is an issue,
// not a pull request. This is the fallback classification path used when
// an item has no cached .type marker yet.
func (c *Client) IsPullRequest(ctx context.Context, owner, repo string, number int) (bool, error) {
	_, resp, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return true, nil
}
