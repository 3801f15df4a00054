package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure catstats can operate correctly.

This command checks:
- Configuration (policy, page size, difficulty sets)
- API key presence, and with --ping a one-page report request
- SQLite version compatibility
- Database accessibility, integrity and lock state
- Network filesystem placement of the database
- Artifacts directory permissions
- Disk space availability

Use this command to troubleshoot issues before loading statistics.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().Bool("ping", false, "request one report page from the API")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== catstats Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	s, err := loadSettings()
	if err != nil {
		results = append(results, checkResult{name: "Configuration", error: true, message: err.Error()})
		printResults(results)
		return fmt.Errorf("system diagnostics failed")
	}

	results = append(results, checkConfiguration(s))
	results = append(results, checkAPIKey(s))
	if ping, _ := cmd.Flags().GetBool("ping"); ping {
		results = append(results, checkAPI(s))
	}
	results = append(results, checkSQLite())
	results = append(results, checkDatabase(s.DBPath))
	results = append(results, checkLock(s.LockPath()))
	results = append(results, checkNetwork(s.DBPath))
	results = append(results, checkArtifactsDirectory(s.Artifacts))
	results = append(results, checkDiskSpace(filepath.Dir(s.DBPath), "database"))

	hasErrors, _ := printResults(results)
	if hasErrors {
		return fmt.Errorf("system diagnostics failed")
	}
	return nil
}

func printResults(results []checkResult) (hasErrors, hasWarnings bool) {
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before loading statistics.")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for catstats operations.")
	}
	return hasErrors, hasWarnings
}

// checkConfiguration summarizes the effective ingest settings
func checkConfiguration(s *config.Settings) checkResult {
	return checkResult{
		name: "Configuration",
		message: fmt.Sprintf("policy %s, %d attempts per period, page size %d, difficulties %s",
			s.Policy, s.MaxAttempts, s.PageLimit, s.Difficulties),
	}
}

// checkAPIKey verifies an API key is configured, without revealing it
func checkAPIKey(s *config.Settings) checkResult {
	if err := s.RequireAPIKey(); err != nil {
		return checkResult{
			name:    "API key",
			error:   true,
			message: fmt.Sprintf("not set (set %s_API_KEY or %s)", config.EnvPrefix, config.FallbackAPIKeyEnv),
		}
	}
	return checkResult{name: "API key", message: s.MaskedAPIKey()}
}

// checkAPI requests the smallest page of the current month's report
func checkAPI(s *config.Settings) checkResult {
	fetcher, err := newFetcher(s)
	if err != nil {
		return checkResult{name: "API", error: true, message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	month, _ := ingest.Month(time.Now().Format("200601"))
	params := fetcher.Params(month)
	params.Limit = 25

	start := time.Now()
	page, err := fetcher.Pages.FetchPage(ctx, params)
	if err != nil {
		return checkResult{name: "API", error: true, message: err.Error()}
	}

	return checkResult{
		name:    "API",
		message: fmt.Sprintf("%s reachable, %d rows in %s", s.APIBaseURL, len(page.Rows), time.Since(start).Round(time.Millisecond)),
	}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is built in; just verify we can get the version
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	// Check if database exists
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	// Check if it's a regular file
	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	// Try to open it
	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	// Check integrity
	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	bibs, _ := db.CountBibs()
	fields, _ := db.CountFieldGroups()

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %s bib records, %s field groups)", dbPath,
			humanize.Bytes(uint64(info.Size())), humanize.Comma(int64(bibs)), humanize.Comma(int64(fields))),
	}
}

// checkLock reports whether a refresh currently holds the database lock
func checkLock(lockPath string) checkResult {
	if _, err := os.Stat(filepath.Dir(lockPath)); err != nil {
		return checkResult{name: "Run lock", message: "no lock file yet"}
	}

	lock := util.NewFileLock(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return checkResult{
			name:    "Run lock",
			warning: true,
			message: fmt.Sprintf("cannot check %s: %v", lockPath, err),
		}
	}
	if !ok {
		return checkResult{
			name:    "Run lock",
			warning: true,
			message: fmt.Sprintf("%s is held, a refresh is in progress", lockPath),
		}
	}
	lock.Unlock()

	return checkResult{name: "Run lock", message: "free"}
}

// checkNetwork warns when the database directory is network-mounted
func checkNetwork(dbPath string) checkResult {
	info, err := util.DetectNetworkFilesystem(filepath.Dir(dbPath))
	if err != nil {
		return checkResult{
			name:    "Filesystem",
			warning: true,
			message: fmt.Sprintf("cannot detect filesystem type: %v", err),
		}
	}
	if info.IsNetwork {
		return checkResult{
			name:    "Filesystem",
			warning: true,
			message: fmt.Sprintf("database is on %s (%s); network pragmas will be applied, locking may be unreliable", info.Protocol, info.MountPath),
		}
	}
	return checkResult{name: "Filesystem", message: "local"}
}

// checkArtifactsDirectory verifies the event log directory is writable
func checkArtifactsDirectory(path string) checkResult {
	// Check if exists
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Try to create it
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Artifacts directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Artifacts directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	// Check write permission by creating a temp file
	testFile := filepath.Join(path, ".catstats_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	usage, err := util.GetDiskUsage(path)
	if err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	// Warn below 1GB available or above 95% used
	warning := false
	warningMsg := ""
	if usage.Available < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usage.UsedPercent() > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(usage.Available), warningMsg),
	}
}
