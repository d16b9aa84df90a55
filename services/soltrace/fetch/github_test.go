// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLocation(path string) Location {
	return Location{
		Coords: Coords{Owner: "acme", Repo: "vault", Branch: "main"},
		Path:   path,
	}
}

func TestGitHubFetcherStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/acme/vault/main/contracts/Vault.sol":
			w.Write([]byte("pragma solidity ^0.8.0;"))
		case "/acme/vault/main/contracts/Missing.sol":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewGitHubFetcher(WithBaseURL(srv.URL), WithRequestsPerSecond(1000))
	ctx := context.Background()

	t.Run("200 returns content", func(t *testing.T) {
		content, err := f.Fetch(ctx, testLocation("contracts/Vault.sol"))
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if content != "pragma solidity ^0.8.0;" {
			t.Errorf("content = %q", content)
		}
	})

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		_, err := f.Fetch(ctx, testLocation("contracts/Missing.sol"))
		if !IsNotFound(err) {
			t.Errorf("expected not-found, got %v", err)
		}
	})

	t.Run("500 maps to NetworkError", func(t *testing.T) {
		_, err := f.Fetch(ctx, testLocation("contracts/Broken.sol"))
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("expected *NetworkError, got %v", err)
		}
		if netErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", netErr.StatusCode)
		}
	})
}

func TestGitHubFetcherURLShape(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewGitHubFetcher(WithBaseURL(srv.URL), WithRequestsPerSecond(1000))
	if _, err := f.Fetch(context.Background(), testLocation("contracts/utils/Math.sol")); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	want := "/acme/vault/main/contracts/utils/Math.sol"
	if gotPath != want {
		t.Errorf("request path = %q, want %q", gotPath, want)
	}
}

func TestMapFetcherRecordsAttempts(t *testing.T) {
	loc := testLocation("contracts/A.sol")
	f := NewMapFetcher(map[string]string{loc.String(): "contract A {}"})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, loc); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := f.Fetch(ctx, testLocation("contracts/B.sol")); !IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if n := f.FetchCount(loc.String()); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
	if len(f.Fetched()) != 2 {
		t.Errorf("fetched = %v, want 2 entries", f.Fetched())
	}
}
