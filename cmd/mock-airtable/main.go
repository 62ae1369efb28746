package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ufiyan/leadrevive/internal/lead"
	"github.com/ufiyan/leadrevive/internal/mockairtable"
)

func main() {
	addr := defaultString("MOCK_AIRTABLE_ADDR", ":8081")
	baseID := defaultString("MOCK_AIRTABLE_BASE_ID", "appLOCAL")
	table := defaultString("MOCK_AIRTABLE_TABLE", "Leads")
	token := defaultString("MOCK_AIRTABLE_TOKEN", "")

	fs := flag.NewFlagSet("mock-airtable", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&baseID, "base-id", baseID, "Base id to serve")
	fs.StringVar(&table, "table", table, "Table name to serve")
	fs.StringVar(&token, "token", token, "If set, require this bearer token")
	seed := fs.Bool("seed", false, "Seed a handful of sample leads on startup")
	_ = fs.Parse(os.Args[1:])

	srv := mockairtable.New(baseID, table)
	if token != "" {
		srv.RequireBearerToken(token)
	}
	if *seed {
		seedSampleLeads(srv)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-airtable listening on %s (base=%s table=%s)\n", addr, baseID, table)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func seedSampleLeads(srv *mockairtable.Server) {
	srv.Seed("recSAMPLE01", map[string]any{
		lead.FieldFullName:          "Ada Lovelace",
		lead.FieldEmail:             "ada@example.com",
		lead.FieldPotentialInterest: "CRM migration",
		lead.FieldLastContacted:     "2024-01-01",
	})
	srv.Seed("recSAMPLE02", map[string]any{
		lead.FieldFullName:      "Alan Turing",
		lead.FieldEmail:         "alan@example.com",
		lead.FieldLastContacted: "01/02/2024",
	})
	srv.Seed("recSAMPLE03", map[string]any{
		lead.FieldFullName: "Grace Hopper",
		lead.FieldEmail:    "grace@example.com",
	})
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
