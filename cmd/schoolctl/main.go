// Command schoolctl administers a school deployment: it hashes passwords,
// generates signing secrets, imports student and teacher CSV exports and
// applies database migrations.
//
// Usage:
//
//	schoolctl hash-password
//	schoolctl gen-secret [-bytes 48]
//	schoolctl import-students [-quarantine file] [-keep-plaintext] [-workers n] file.csv
//	schoolctl import-teachers [-quarantine file] [-keep-plaintext] [-workers n] file.csv
//	schoolctl migrate
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/maxmusicschool/schoolauth/internal"
	"github.com/maxmusicschool/schoolauth/internal/config"
	"github.com/maxmusicschool/schoolauth/internal/stores"
	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/records"
	"golang.org/x/term"
)

const usage = `usage: schoolctl <command> [flags]

commands:
  hash-password     read a password without echo and print its argon2id hash
  gen-secret        print a random JWT signing secret
  import-students   import a students CSV export
  import-teachers   import a teachers CSV export
  migrate           apply database migrations
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "schoolctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "hash-password":
		return hashPassword(stdin, stdout, stderr)
	case "gen-secret":
		return genSecret(rest, stdout)
	case "import-students", "import-teachers":
		return importFile(ctx, cmd, rest, stdout)
	case "migrate":
		return migrate(ctx, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func newArgon2() (*password.Argon2, error) {
	cfg := password.DefaultConfig()
	// Imported sheets carry short legacy passwords.
	cfg.MinLength = 0
	return password.NewArgon2(cfg)
}

func hashPassword(stdin *os.File, stdout, stderr io.Writer) error {
	var pw string
	if term.IsTerminal(int(stdin.Fd())) {
		fmt.Fprint(stderr, "Password: ")
		b, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		pw = string(b)
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		return errors.New("empty password")
	}

	argon, err := newArgon2()
	if err != nil {
		return err
	}
	h, err := argon.Hash(pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, h)
	return nil
}

func genSecret(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gen-secret", flag.ContinueOnError)
	size := fs.Int("bytes", 48, "random bytes before encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := internal.NewSecretString(*size)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, s)
	return nil
}

func importFile(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	quarantine := fs.String("quarantine", "", "file for rejected rows (default <file>.rejected.csv)")
	keepPlaintext := fs.Bool("keep-plaintext", false, "store plaintext passwords unhashed")
	workers := fs.Int("workers", runtime.NumCPU(), "concurrent password hashers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s: expected one CSV file", cmd)
	}
	path := fs.Arg(0)
	if *quarantine == "" {
		*quarantine = strings.TrimSuffix(path, ".csv") + ".rejected.csv"
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DBAdapter == config.AdapterMemory {
		return errors.New("importing into the memory store has no effect; set DB_ADAPTER")
	}
	store, err := stores.Open(ctx, cfg, stores.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer store.Close()

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	im := importer{workers: *workers}
	if !*keepPlaintext {
		argon, err := newArgon2()
		if err != nil {
			return err
		}
		im.hash = argon.Hash
	}

	var (
		report  importReport
		columns []string
	)
	if cmd == "import-students" {
		columns = records.StudentColumns
		report, err = runImport(ctx, im, studentRows(store), in)
	} else {
		columns = records.TeacherColumns
		report, err = runImport(ctx, im, teacherRows(store), in)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "imported %d rows, rejected %d\n", report.imported, len(report.rejected))
	if len(report.rejected) == 0 {
		return nil
	}
	out, err := os.Create(*quarantine)
	if err != nil {
		return err
	}
	if err := writeQuarantine(out, columns, report.rejected); err != nil {
		_ = out.Close()
		return err
	}
	fmt.Fprintf(stdout, "rejected rows written to %s\n", *quarantine)
	return out.Close()
}

func migrate(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := stores.Migrate(ctx, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s migrations applied\n", cfg.DBAdapter)
	return nil
}
