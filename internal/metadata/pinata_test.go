package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPinataClient_UploadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-jwt" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}

		var req pinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		content, ok := req.PinataContent.(map[string]interface{})
		if !ok {
			t.Fatalf("pinataContent is %T", req.PinataContent)
		}
		if content["symbol"] != "PERP3" {
			t.Errorf("symbol = %v, want PERP3", content["symbol"])
		}

		json.NewEncoder(w).Encode(pinResponse{IpfsHash: "QmTestHash123"})
	}))
	defer server.Close()

	client := NewPinataClient("test-jwt", "https://my.gateway")
	client.endpoint = server.URL

	uri, err := client.UploadJSON(context.Background(), TokenMetadata{
		Name:   "PERPRUG.FUN",
		Symbol: "PERP3",
	})
	if err != nil {
		t.Fatalf("UploadJSON: %v", err)
	}

	if uri != "https://my.gateway/ipfs/QmTestHash123" {
		t.Errorf("uri = %s", uri)
	}
}

func TestPinataClient_DefaultGateway(t *testing.T) {
	client := NewPinataClient("jwt", "")
	if client.gateway != DefaultGateway {
		t.Errorf("gateway = %s, want %s", client.gateway, DefaultGateway)
	}
}

func TestPinataClient_UploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	client := NewPinataClient("bad-jwt", "")
	client.endpoint = server.URL

	_, err := client.UploadJSON(context.Background(), TokenMetadata{Name: "x"})

	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	if upErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", upErr.StatusCode)
	}
}

func TestPinataClient_EmptyHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pinResponse{})
	}))
	defer server.Close()

	client := NewPinataClient("jwt", "")
	client.endpoint = server.URL

	if _, err := client.UploadJSON(context.Background(), TokenMetadata{Name: "x"}); err == nil {
		t.Fatal("expected error for empty IpfsHash")
	}
}
