package services

import (
	"net/http"
	"testing"
	"time"
)

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{}
	c := NewClient("http://tasks.example", WithHTTPClient(shared), WithTimeout(5*time.Second))

	if shared.Timeout != 0 {
		t.Fatalf("shared client mutated; timeout %v", shared.Timeout)
	}
	if c.client == shared || c.client.Timeout != 5*time.Second {
		t.Fatalf("expected a private copy with the timeout; got %v", c.client.Timeout)
	}

	other := NewClient("http://tasks.example", WithHTTPClient(http.DefaultClient), WithTimeout(time.Second))
	if http.DefaultClient.Timeout != 0 || other.client.Timeout != time.Second {
		t.Fatalf("default client mutated; timeout %v", http.DefaultClient.Timeout)
	}
}
