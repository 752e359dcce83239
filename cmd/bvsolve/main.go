// cmd/bvsolve/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"bvsolve/internal/driver"
	"bvsolve/internal/logging"
	"bvsolve/internal/oracle"
)

const VERSION = "1.0.0"

var BuildDate = time.Now().Format("2006-01-02")

// commandAliases mirrors the teacher CLI's short-form dispatch.
var commandAliases = map[string]string{
	"p": "print",
	"t": "train",
	"s": "solve_my",
	"c": "chal",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}
	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		showVersion()
		return
	}

	cfg := driver.DefaultConfig()
	if url := os.Getenv("BV_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	token := os.Getenv("BV_AUTH_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "BV_AUTH_TOKEN must be set")
		os.Exit(1)
	}
	cfg.AuthToken = token

	client := oracle.NewClient(cfg.BaseURL, cfg.AuthToken)
	logger := logging.Default()

	switch cmd {
	case "print":
		if err := printCommand(client); err != nil {
			log.Fatalf("print: %v", err)
		}
	case "train":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: bvsolve train <size>")
			os.Exit(1)
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad size %q: %v\n", args[1], err)
			os.Exit(1)
		}
		if err := trainCommand(client, logger, cfg, size); err != nil {
			log.Fatalf("train: %v", err)
		}
	case "solve_my":
		limit := 0
		if len(args) >= 2 {
			n, err := strconv.Atoi(args[1])
			if err == nil {
				limit = n
			}
		}
		if err := solveMyCommand(client, logger, cfg, limit); err != nil {
			log.Fatalf("solve_my: %v", err)
		}
	case "chal":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: bvsolve chal <id> <size> [operators...]")
			os.Exit(1)
		}
		size, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad size %q: %v\n", args[2], err)
			os.Exit(1)
		}
		if err := chalCommand(client, logger, cfg, args[1], size, args[3:]); err != nil {
			log.Fatalf("chal: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func printCommand(client *oracle.Client) error {
	ctx := context.Background()
	problems, err := client.MyProblems(ctx)
	if err != nil {
		return err
	}
	for i, p := range problems {
		status := ""
		if p.Solved {
			status = "SOLVED"
		}
		fmt.Printf("%4d: %s %3d %10s\n", i, p.ID, p.Size, status)
	}
	hist := oracle.SizeHistogram(problems)
	for size, n := range hist {
		fmt.Printf("size %2d: %3d items\n", size, n)
	}
	return nil
}

func trainCommand(client *oracle.Client, logger *logging.Logger, cfg driver.Config, size int) error {
	ctx := context.Background()
	resp, err := client.Train(ctx, size, nil)
	if err != nil {
		return err
	}
	logger.Infof("cli", "got training task %s size=%d operators=%v", resp.ID, resp.Size, resp.Operators)
	return chalCommand(client, logger, cfg, resp.ID, resp.Size, resp.Operators)
}

func solveMyCommand(client *oracle.Client, logger *logging.Logger, cfg driver.Config, limit int) error {
	ctx := context.Background()
	problems, err := client.MyProblems(ctx)
	if err != nil {
		return err
	}
	solved := 0
	for _, p := range problems {
		if p.Solved {
			continue
		}
		// A fresh logger per challenge gives each one its own run ID.
		if err := chalCommand(client, logging.Default(), cfg, p.ID, p.Size, p.Operators); err != nil {
			logger.Errorf("cli", "problem %s: %v", p.ID, err)
			continue
		}
		solved++
		if limit > 0 && solved >= limit {
			break
		}
	}
	return nil
}

func chalCommand(client *oracle.Client, logger *logging.Logger, cfg driver.Config, id string, size int, operators []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Budget+10*time.Second)
	defer cancel()

	result, err := driver.Solve(ctx, client, logger, id, size, operators, cfg)
	if err != nil {
		return err
	}
	if result.Win {
		fmt.Printf("WIN %s: %s\n", id, result.Program)
	} else if result.TimedOut {
		fmt.Printf("TIMEOUT %s after %d probes, %d guesses\n", id, result.Probes, result.Guesses)
	}
	return nil
}

func showUsage() {
	fmt.Println("bvsolve - ICFP 2013 bitvector oracle solver")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bvsolve print                         List problem inventory with size histogram   (alias: p)")
	fmt.Println("  bvsolve train <size>                  Request and solve a training problem          (alias: t)")
	fmt.Println("  bvsolve solve_my [limit]               Solve unsolved problems from the inventory    (alias: s)")
	fmt.Println("  bvsolve chal <id> <size> [ops...]      Solve one challenge directly                  (alias: c)")
	fmt.Println("  bvsolve help                           Show this message")
	fmt.Println("  bvsolve version                        Show version information")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  BV_BASE_URL     oracle endpoint (default http://icfpc2013.cloudapp.net)")
	fmt.Println("  BV_AUTH_TOKEN   account auth token (required)")
}

func showVersion() {
	fmt.Printf("bvsolve %s (built %s)\n", VERSION, BuildDate)
}
