// Command verify-tables checks that every table the service reads or writes
// exists in the target database. Supabase exposes the underlying Postgres
// directly, so the check goes through database/sql with the pq driver using
// DATABASE_URL.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver
)

// VerificationResult stores test results
type VerificationResult struct {
	Table   string
	Status  string
	Details string
}

// Tables the service depends on, with the columns the queries rely on.
var requiredTables = map[string][]string{
	"coaches":              {"coach_id", "user_id"},
	"custom_jobs":          {"id", "coach_id"},
	"custom_job_questions": {"id", "custom_job_id", "source_custom_job_question_id", "publication_status"},
	"custom_job_knowledge_base": {"id", "custom_job_id", "knowledge_base"},
	"mock_interviews":      {"id", "custom_job_id", "status"},
	"mock_interview_messages": {"id", "mock_interview_id", "role", "text"},
	"mock_interview_feedback": {"id", "mock_interview_id", "overview"},
	"job_applications":     {"id", "custom_job_id", "status"},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          Yorby Go Backend - Table Verification               ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("❌ DATABASE_URL must be set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}

	fmt.Println("Checking tables...")
	fmt.Println()

	results := []VerificationResult{}
	for table, columns := range requiredTables {
		result := verifyTable(db, table, columns)
		results = append(results, result)
		printResult(result)
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	passed := 0
	failed := 0
	for _, r := range results {
		if r.Status == "✅ PASS" {
			passed++
		} else {
			failed++
		}
	}
	fmt.Printf("Results: %d PASSED, %d FAILED\n", passed, failed)
	fmt.Println("═══════════════════════════════════════════════════════════════")

	if failed > 0 {
		os.Exit(1)
	}
}

func printResult(r VerificationResult) {
	fmt.Printf("  %-28s %s  %s\n", r.Table, r.Status, r.Details)
}

func verifyTable(db *sql.DB, table string, columns []string) VerificationResult {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return VerificationResult{table, "❌ FAIL", err.Error()}
	}
	if !exists {
		return VerificationResult{table, "❌ FAIL", "table missing"}
	}

	for _, column := range columns {
		var columnExists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
			)`, table, column).Scan(&columnExists)
		if err != nil {
			return VerificationResult{table, "❌ FAIL", err.Error()}
		}
		if !columnExists {
			return VerificationResult{table, "❌ FAIL", fmt.Sprintf("column %s missing", column)}
		}
	}

	return VerificationResult{table, "✅ PASS", fmt.Sprintf("%d columns OK", len(columns))}
}
