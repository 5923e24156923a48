package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clientdesk/internal/credential"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "sheet-1", "Sheet1", credential.Static("test-token"), discardLogger())
}

func TestHeaderRow(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		if !strings.Contains(req.URL.Path, "Sheet1!1:1") {
			t.Fatalf("unexpected range path: %s", req.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"Nombre", "Client Phone Number", "Correo"}},
		})
	})

	headers, err := client.HeaderRow(context.Background())
	if err != nil {
		t.Fatalf("header row: %v", err)
	}
	if len(headers) != 3 || headers[1] != "Client Phone Number" {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestColumnMapsEmptyCells(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "Sheet1!B2:B") {
			t.Fatalf("unexpected range path: %s", req.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"5551234567"}, {}, {"5559990000"}},
		})
	})

	values, err := client.Column(context.Background(), 1)
	if err != nil {
		t.Fatalf("column: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 positional values, got %d", len(values))
	}
	if values[0] != "5551234567" || values[1] != "" || values[2] != "5559990000" {
		t.Fatalf("unexpected column values: %v", values)
	}
}

func TestRowSingleFetch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "Sheet1!4:4") {
			t.Fatalf("unexpected range path: %s", req.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"Ana", "5551234567", "ana@x.com"}},
		})
	})

	row, err := client.Row(context.Background(), 4)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if len(row) != 3 || row[0] != "Ana" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestRowCountExcludesHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"Phone"}, {"111"}, {"222"}},
		})
	})

	count, err := client.RowCount(context.Background())
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 data rows, got %d", count)
	}
}

func TestAuthRejectedIsErrAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.HeaderRow(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if IsTransient(err) {
		t.Fatal("auth rejection must not be transient")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.HeaderRow(context.Background())
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRateLimitIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Column(context.Background(), 0)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestMissingCredentialIsErrAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("request must not reach the data source without a credential")
	}))
	defer server.Close()

	client := New(server.URL, "sheet-1", "Sheet1", credential.Static(""), discardLogger())
	_, err := client.HeaderRow(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"}
	for index, expected := range cases {
		if got := columnLetter(index); got != expected {
			t.Fatalf("columnLetter(%d) = %s, expected %s", index, got, expected)
		}
	}
}
