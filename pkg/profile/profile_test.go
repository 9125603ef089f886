package profile

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/worldhost/server/pkg/wtypes"
)

func TestVerifyOnlineMatch(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"%s"}`, id.String())
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	requested := wtypes.UserId(id)
	// force version-4 bits so IsOnline() is true
	requested[6] = (requested[6] & 0x0f) | 0x40

	result := c.Verify(requested, "Steve", "deadbeef")
	if result.Fatal {
		t.Fatalf("unexpected fatal result: %+v", result)
	}
}

func TestVerifyOnlineMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"%s"}`, uuid.New().String())
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	requested := wtypes.UserId(uuid.New())
	requested[6] = (requested[6] & 0x0f) | 0x40

	result := c.Verify(requested, "Steve", "deadbeef")
	if !result.Fatal {
		t.Fatal("expected fatal mismatch")
	}
}

func TestVerifyOnlineNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	requested := wtypes.UserId(uuid.New())
	requested[6] = (requested[6] & 0x0f) | 0x40

	result := c.Verify(requested, "Steve", "deadbeef")
	if !result.Fatal {
		t.Fatal("expected fatal not-found")
	}
}

func TestVerifyOffline(t *testing.T) {
	c := NewClient("http://unused.invalid")
	name := "Steve"
	offline := wtypes.OfflineUserId(name)

	result := c.Verify(offline, name, "")
	if result.Fatal {
		t.Fatalf("expected non-fatal success, got %+v", result)
	}

	mismatched := offline
	mismatched[0] ^= 0xff
	result2 := c.Verify(mismatched, name, "")
	if result2.Fatal {
		t.Fatal("offline mismatch must be non-fatal (warning only)")
	}
	if result2.Message == "" {
		t.Fatal("expected a warning message for offline mismatch")
	}
}

func TestVerifyReservedUUID(t *testing.T) {
	c := NewClient("http://unused.invalid")
	result := c.Verify(wtypes.Nil, "anyone", "")
	if !result.Fatal {
		t.Fatal("expected reserved nil UUID to be fatal")
	}
	result2 := c.Verify(wtypes.Max, "anyone", "")
	if !result2.Fatal {
		t.Fatal("expected reserved max UUID to be fatal")
	}
}
