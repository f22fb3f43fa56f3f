// warden-audit inspects a warden audit database: verifies hash-chain
// integrity and tails recent records.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/veritaslab/warden"
	"github.com/veritaslab/warden/stores"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "verify":
		handleVerify(os.Args[2:])
	case "tail":
		handleTail(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("warden-audit - audit chain inspection")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  warden-audit verify <db> [domain]        - verify chain integrity")
	fmt.Println("  warden-audit tail <db> <domain> [limit]  - show recent records")
}

func openChain(path string) (*warden.AuditChain, func(), error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	db := squealx.NewDb(sqlDB, "sqlite", "warden")
	if err := stores.Migrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	chain := warden.NewAuditChain(stores.NewSQLAuditStore(db))
	return chain, func() { sqlDB.Close() }, nil
}

func handleVerify(args []string) {
	chain, closeDB, err := openChain(args[0])
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer closeDB()

	ctx := context.Background()
	var report warden.ChainReport
	if len(args) > 1 {
		report, err = chain.VerifyChain(ctx, args[1])
	} else {
		report, err = chain.VerifyAllChains(ctx)
	}
	if err != nil {
		fmt.Printf("Error verifying chain: %v\n", err)
		os.Exit(1)
	}
	if !report.Valid {
		fmt.Printf("TAMPERED: chain for domain %s broken at sequence %d\n", report.Domain, report.BrokenAt)
		os.Exit(2)
	}
	fmt.Println("OK: all chains intact")
}

func handleTail(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: warden-audit tail <db> <domain> [limit]")
		os.Exit(1)
	}
	chain, closeDB, err := openChain(args[0])
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer closeDB()

	limit := 20
	if len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := chain.Query(context.Background(), warden.AuditFilter{Domain: args[1], Limit: limit})
	if err != nil {
		fmt.Printf("Error querying audit log: %v\n", err)
		os.Exit(1)
	}
	for _, rec := range records {
		fmt.Printf("%6d  %s  %-20s actor=%s role=%s resource=%s action=%s effect=%s\n",
			rec.Sequence, rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Event, rec.ActorID, rec.Role, rec.Resource, rec.Action, rec.Effect)
	}
}
