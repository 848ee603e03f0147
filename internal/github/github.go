// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package github wraps go-github down to the handful of operations the
// publish engine needs: identifying a repository from its remote URL and
// opening a pull request for a for_pull_request run.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v69/github"
)

// Client represents this package's abstraction of a GitHub client, including
// an access token.
type Client struct {
	*github.Client
	accessToken string
}

// NewClient creates a new Client to interact with GitHub.
func NewClient(accessToken string) (*Client, error) {
	return newClientWithHTTP(accessToken, nil)
}

func newClientWithHTTP(accessToken string, httpClient *http.Client) (*Client, error) {
	return &Client{
		Client:      github.NewClient(httpClient).WithAuthToken(accessToken),
		accessToken: accessToken,
	}, nil
}

// Token returns the access token for Client.
func (c *Client) Token() string {
	return c.accessToken
}

// Repository represents a GitHub repository with an owner (e.g. an
// organization or a user) and a repository name.
type Repository struct {
	// Owner of the repository.
	Owner string
	// Name of the repository.
	Name string
}

// PullRequestMetadata identifies a pull request within a repository.
type PullRequestMetadata struct {
	// Repo is the repository containing the pull request.
	Repo *Repository
	// Number is the number of the pull request.
	Number int
}

// ParseRemote parses a GitHub HTTPS remote URL into its owner and repository
// name.
func ParseRemote(remoteURL string) (*Repository, error) {
	if !strings.HasPrefix(remoteURL, "https://github.com/") {
		return nil, fmt.Errorf("remote '%s' is not a GitHub remote", remoteURL)
	}
	remotePath := remoteURL[len("https://github.com/"):]
	pathParts := strings.SplitN(remotePath, "/", 3)
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] == "" {
		return nil, fmt.Errorf("remote '%s' is not a GitHub remote", remoteURL)
	}
	return &Repository{Owner: pathParts[0], Name: strings.TrimSuffix(pathParts[1], ".git")}, nil
}

// parseSSHRemote parses a GitHub SSH remote ("git@github.com:owner/repo.git")
// into its owner and repository name.
func parseSSHRemote(remote string) (*Repository, error) {
	const prefix = "git@github.com:"
	if !strings.HasPrefix(remote, prefix) {
		return nil, fmt.Errorf("remote '%s' is not a GitHub remote", remote)
	}
	remotePath := strings.TrimPrefix(remote, prefix)
	pathParts := strings.SplitN(remotePath, "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return nil, fmt.Errorf("remote '%s' is not a GitHub remote", remote)
	}
	return &Repository{Owner: pathParts[0], Name: strings.TrimSuffix(pathParts[1], ".git")}, nil
}

// ParseAnyRemote parses either an HTTPS or an SSH GitHub remote URL.
func ParseAnyRemote(remote string) (*Repository, error) {
	if repo, err := ParseRemote(remote); err == nil {
		return repo, nil
	}
	return parseSSHRemote(remote)
}

// CreatePullRequest opens a pull request from remoteBranch into base in repo.
// If body is empty, a default body describing a publish-engine run is used.
func (c *Client) CreatePullRequest(ctx context.Context, repo *Repository, remoteBranch, base, title, body string) (*PullRequestMetadata, error) {
	if body == "" {
		body = "Workspace publish run. See individual commits for the manifest edits applied at each phase."
	}
	newPR := &github.NewPullRequest{
		Title:               &title,
		Head:                &remoteBranch,
		Base:                github.Ptr(base),
		Body:                github.Ptr(body),
		MaintainerCanModify: github.Ptr(true),
	}
	pr, _, err := c.PullRequests.Create(ctx, repo.Owner, repo.Name, newPR)
	if err != nil {
		return nil, err
	}
	return &PullRequestMetadata{Repo: repo, Number: pr.GetNumber()}, nil
}
