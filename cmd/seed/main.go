// Seed tool for loading sample catalog data into a running Kestrel server.
//
// Usage:
//
//	go run cmd/seed/main.go -url http://localhost:8080 -tenant branch-001
//
// This tool:
//  1. Creates a small catalog of items across every category
//  2. Registers patrons across every class
//  3. Checks out a mix of current and overdue loans
//  4. Prints the overdue totals per patron
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type itemReq struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

type patronReq struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

type checkoutReq struct {
	ID             string `json:"id"`
	ItemID         string `json:"itemId"`
	PatronID       string `json:"patronId"`
	CheckoutDate   string `json:"checkoutDate"`
	LoanPeriodDays int    `json:"loanPeriodDays,omitempty"`
}

type totalResp struct {
	PatronID     string  `json:"patronId"`
	OverdueLoans int     `json:"overdueLoans"`
	Total        float64 `json:"total"`
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Kestrel server URL")
	tenant := flag.String("tenant", "branch-001", "tenant ID")
	flag.Parse()

	client := &seeder{
		base:   *url,
		tenant: *tenant,
		http:   &http.Client{Timeout: 10 * time.Second},
	}

	items := []itemReq{
		{ID: "item-001", Title: "The Go Programming Language", Category: "textbook"},
		{ID: "item-002", Title: "Leaves of Grass", Category: "regular"},
		{ID: "item-003", Title: "Oxford English Dictionary", Category: "reference"},
		{ID: "item-004", Title: "The Midnight Library", Category: "bestseller"},
		{ID: "item-005", Title: "The Very Hungry Caterpillar", Category: "children"},
		{ID: "item-006", Title: "A Brief History of Time", Category: "regular"},
	}

	patrons := []patronReq{
		{ID: "patron-001", Name: "Alice Chen", Class: "student"},
		{ID: "patron-002", Name: "Bob Whitfield", Class: "senior"},
		{ID: "patron-003", Name: "Carol Osei", Class: "faculty"},
		{ID: "patron-004", Name: "Dan Kowalski", Class: "regular"},
	}

	today := time.Now().UTC()
	overdueStart := today.AddDate(0, 0, -25).Format("2006-01-02")
	recentStart := today.AddDate(0, 0, -5).Format("2006-01-02")

	loans := []checkoutReq{
		// Overdue: checked out 25 days ago with a 14-day period
		{ID: "loan-001", ItemID: "item-001", PatronID: "patron-001", CheckoutDate: overdueStart},
		{ID: "loan-002", ItemID: "item-002", PatronID: "patron-001", CheckoutDate: overdueStart},
		{ID: "loan-003", ItemID: "item-003", PatronID: "patron-001", CheckoutDate: overdueStart},
		{ID: "loan-004", ItemID: "item-004", PatronID: "patron-002", CheckoutDate: overdueStart},
		// Current loans
		{ID: "loan-005", ItemID: "item-005", PatronID: "patron-003", CheckoutDate: recentStart},
		{ID: "loan-006", ItemID: "item-006", PatronID: "patron-004", CheckoutDate: recentStart},
	}

	for _, it := range items {
		client.post("/items", it)
	}
	fmt.Printf("created %d items\n", len(items))

	for _, p := range patrons {
		client.post("/patrons", p)
	}
	fmt.Printf("created %d patrons\n", len(patrons))

	for _, l := range loans {
		client.post("/loans", l)
	}
	fmt.Printf("created %d loans\n", len(loans))

	fmt.Println()
	fmt.Println("overdue totals (standard strategy):")
	for _, p := range patrons {
		var total totalResp
		client.get("/patrons/"+p.ID+"/total?strategy=standard", &total)
		fmt.Printf("  %-10s %-16s overdue=%d total=%.2f\n", p.ID, p.Name, total.OverdueLoans, total.Total)
	}
}

type seeder struct {
	base   string
	tenant string
	http   *http.Client
}

func (s *seeder) post(path string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal %s: %v\n", path, err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, s.base+path, bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request %s: %v\n", path, err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", s.tenant)

	resp, err := s.http.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "POST %s: %v\n", path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "POST %s: unexpected status %d\n", path, resp.StatusCode)
		os.Exit(1)
	}
}

func (s *seeder) get(path string, out any) {
	req, err := http.NewRequest(http.MethodGet, s.base+path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request %s: %v\n", path, err)
		os.Exit(1)
	}
	req.Header.Set("X-Tenant-ID", s.tenant)

	resp, err := s.http.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "GET %s: %v\n", path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		fmt.Fprintf(os.Stderr, "decode %s: %v\n", path, err)
		os.Exit(1)
	}
}
