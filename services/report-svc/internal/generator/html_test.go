// services/report-svc/internal/generator/html_test.go
package generator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHTMLRenderer_Format(t *testing.T) {
	g := NewHTMLRenderer(Options{})
	if g.Format() != FormatHTML {
		t.Errorf("Format() = %v, want HTML", g.Format())
	}
}

func TestHTMLRenderer_InventoryStock(t *testing.T) {
	g := NewHTMLRenderer(Options{CompanyName: "Test Garage"})
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.html")

	n, err := g.Render(context.Background(), path, inventoryTable())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Render() = %d bytes, file has %d", n, len(data))
	}

	content := string(data)
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Inventory Stock</title>",
		"<strong>Test Garage</strong>",
		"2024-01-01 to 2024-01-31",
		"<th>Part</th><th>Category</th><th>Qty</th><th>Price</th>",
		"<td>Oil Filter</td><td>Filters</td><td>12</td><td>$8.00</td>",
		"1 rows",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("output missing %q", want)
		}
	}
	assertNoTempFiles(t, dir)
}

func TestHTMLRenderer_EscapesCells(t *testing.T) {
	g := NewHTMLRenderer(Options{})
	path := filepath.Join(t.TempDir(), "escaped.html")

	table := &Table{
		Title:   "Customers",
		Headers: []string{"Name"},
		Rows:    [][]any{{"<script>alert(1)</script>"}},
	}
	if _, err := g.Render(context.Background(), path, table); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if strings.Contains(content, "<script>alert") {
		t.Error("cell content must be escaped")
	}
	if !strings.Contains(content, "&lt;script&gt;") {
		t.Error("escaped cell content missing")
	}
	if !strings.Contains(content, "<strong>Workshop</strong>") {
		t.Error("default company name missing")
	}
}

func TestHTMLRenderer_EmptyTable(t *testing.T) {
	g := NewHTMLRenderer(Options{})
	path := filepath.Join(t.TempDir(), "empty.html")

	if _, err := g.Render(context.Background(), path, &Table{Title: "Low Stock", Headers: []string{"Part"}}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "No data for the selected period") {
		t.Error("empty notice missing")
	}
}
